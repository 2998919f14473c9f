package server

import (
	"strings"
	"time"

	"gameshelf/backend/internal/auth"
	"gameshelf/backend/internal/config"
	"gameshelf/backend/internal/handler"
	"gameshelf/backend/internal/logging"
	"gameshelf/backend/internal/metrics"
	"gameshelf/backend/internal/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	_ "gameshelf/backend/docs"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewRouter wires every route. It reads config.AppConfig and storage.Default,
// which must be set. authLimiter guards the credential endpoints.
func NewRouter(authLimiter *auth.RateLimiter) *gin.Engine {
	cfg := config.AppConfig

	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(), metrics.Middleware())
	corsConfig := cors.Config{
		AllowOrigins:     cfg.AllowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		// No browser origin is trusted.
		corsConfig.AllowOriginFunc = func(string) bool { return false }
	}
	router.Use(cors.New(corsConfig))
	router.MaxMultipartMemory = cfg.MaxUploadBytes()

	// Ops
	router.GET("/ping", handler.Ping)
	router.GET("/healthz", handler.Healthz)
	router.GET("/metrics", metrics.Handler())
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if dir := storage.Default.LocalDir(); dir != "" && strings.HasPrefix(cfg.StoragePublicURL, "/") {
		router.Static(strings.TrimSuffix(cfg.StoragePublicURL, "/"), dir)
	}

	// Writes that change report inputs
	refreshReports := handler.RefreshReports()
	limitUpload := handler.LimitUploadBody(cfg.MaxUploadBytes())

	// Auth
	router.POST("/register", authLimiter.Middleware(), refreshReports, handler.RegisterUser)
	router.POST("/login", authLimiter.Middleware(), handler.LoginUser)
	router.POST("/logout", auth.AuthMiddleware(), handler.LogoutUser)
	router.POST("/add-game-to-database", auth.AuthMiddleware(), limitUpload, refreshReports, handler.AddGameToDatabase)

	api := router.Group("/api")
	{
		api.POST("/token/refresh", handler.RefreshToken)

		// Catalogue (public, enriched when authenticated)
		public := api.Group("")
		public.Use(auth.OptionalAuthMiddleware())
		{
			public.GET("/search", handler.SearchGames)
			public.GET("/consoles", handler.GetConsoles)
			public.GET("/games/:gameId", handler.GetGameByID)
		}

		protected := api.Group("")
		protected.Use(auth.AuthMiddleware())
		{
			users := protected.Group("/users")
			{
				users.GET("", handler.SearchUsers) // Must be before /:id
				users.GET("/me", handler.GetMe)
				users.GET("/:id", handler.GetUserByID)

				self := users.Group("/:id")
				self.Use(auth.SelfOrAdminMiddleware("id"))
				{
					self.PUT("/avatar", limitUpload, handler.UpdateAvatar)
					self.PUT("/username", handler.UpdateUsername)
					self.PUT("/email", handler.UpdateEmail)
					self.PUT("/password", handler.UpdatePassword)
					self.PUT("/bio", handler.UpdateBio)
				}
			}

			wishlist := protected.Group("/mywishlist/:userId")
			wishlist.Use(auth.SelfOrAdminMiddleware("userId"), refreshReports)
			{
				wishlist.GET("", handler.GetWishlist)
				wishlist.POST("", handler.AddToWishlist)
				wishlist.DELETE("", handler.RemoveFromWishlist)
			}

			collection := protected.Group("/mycollection/:userId")
			collection.Use(auth.SelfOrAdminMiddleware("userId"), refreshReports)
			{
				collection.GET("", handler.GetCollection)
				collection.POST("", handler.AddToCollection)
				collection.DELETE("", handler.RemoveFromCollection)
			}

			ownerOnly := auth.SelfOrAdminMiddleware("userId")
			protected.GET("/game-info/:userId/:gameId", ownerOnly, handler.GetGameInfo)
			protected.POST("/add-game-details/:userId/:gameId", ownerOnly, refreshReports, handler.AddGameDetails)
			protected.PUT("/edit-game-details/:userId/:gameId", ownerOnly, refreshReports, handler.EditGameDetails)

			protected.GET("/reports/:reportType", handler.GetReport)

			friends := protected.Group("/friends")
			friends.Use(refreshReports)
			{
				friends.GET("", handler.GetFriends)
				friends.DELETE("/:id", handler.RemoveFriend)
				friends.GET("/requests", handler.GetFriendRequests)
				friends.POST("/requests/:id", handler.SendFriendRequest)
				friends.DELETE("/requests/:id", handler.CancelFriendRequest)
				friends.POST("/requests/:id/accept", handler.AcceptFriendRequest)
				friends.POST("/requests/:id/decline", handler.DeclineFriendRequest)
			}

			chats := protected.Group("/chats")
			chats.Use(refreshReports)
			{
				chats.GET("", handler.GetChats)
				chats.GET("/:friendId/messages", handler.GetMessages)
				chats.POST("/:friendId/messages", handler.SendMessage)
				chats.GET("/:friendId/stream", handler.StreamMessages)
			}
		}

		admin := api.Group("/admin")
		admin.Use(auth.AuthMiddleware(), auth.AdminMiddleware(), refreshReports)
		{
			admin.POST("/consoles", handler.CreateConsole)
			admin.DELETE("/consoles/:consoleId", handler.DeleteConsole)
			admin.PUT("/games/:gameId", limitUpload, handler.UpdateGame)
			admin.DELETE("/games/:gameId", handler.DeleteGame)
		}
	}

	return router
}
