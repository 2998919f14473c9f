package server

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"gameshelf/backend/internal/handler"
	"gameshelf/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGameToDatabase(t *testing.T) {
	env := newTestEnv(t)
	user := env.register("link")
	consoles := env.consoleIDs(2)

	w := env.do(http.MethodPost, "/add-game-to-database", user.Token, gin.H{
		"name":        "Breath of the Wild",
		"console_ids": consoles,
		"cover_art":   "https://images.example.com/botw.png",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	game := decode[handler.GameResponse](t, w)
	assert.Equal(t, "https://images.example.com/botw.png", game.CoverArt)
	assert.Len(t, game.Consoles, 2)

	w = env.do(http.MethodPost, "/add-game-to-database", user.Token, gin.H{
		"name":        "breath of the wild",
		"console_ids": consoles,
	})
	assert.Equal(t, handler.StatusDuplicateResource, w.Code, "names are unique case-insensitively")

	w = env.do(http.MethodPost, "/add-game-to-database", user.Token, gin.H{
		"name":        "Tears of the Kingdom",
		"console_ids": []uint{9999},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown console")

	w = env.do(http.MethodPost, "/add-game-to-database", user.Token, gin.H{"name": "No Consoles"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/add-game-to-database", user.Token, gin.H{
		"name":        "Bad Cover",
		"console_ids": consoles,
		"cover_art":   "ftp://example.com/a.png",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/add-game-to-database", "", gin.H{"name": "x"}).Code)
}

func TestAddGameUploadsCover(t *testing.T) {
	env := newTestEnv(t)
	user := env.register("zelda")
	consoleID := strconv.FormatUint(uint64(env.consoleIDs(1)[0]), 10)

	req := multipartRequest(t, http.MethodPost, "/add-game-to-database", map[string][]string{
		"name":        {"Skyward Sword"},
		"console_ids": {consoleID},
	}, "cover", pngBytes(t))
	w := env.serve(req, user.Token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	game := decode[handler.GameResponse](t, w)
	assert.True(t, strings.HasPrefix(game.CoverArt, "/uploads/covers/"), game.CoverArt)
	assert.True(t, strings.HasSuffix(game.CoverArt, ".png"))

	id, _ := strconv.Atoi(consoleID)
	w = env.do(http.MethodPost, "/add-game-to-database", user.Token, gin.H{
		"name":        "Minish Cap",
		"console_ids": []int{id},
		"cover_art":   "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t)),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(decode[handler.GameResponse](t, w).CoverArt, "/uploads/covers/"))

	w = env.do(http.MethodPost, "/add-game-to-database", user.Token, gin.H{
		"name":        "Not An Image",
		"console_ids": []int{id},
		"cover_art":   "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello")),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddGameRejectsOversizedCovers(t *testing.T) {
	env := newTestEnv(t)
	user := env.register("ganon")
	consoleID := strconv.FormatUint(uint64(env.consoleIDs(1)[0]), 10)
	huge := append(pngBytes(t), make([]byte, 2<<20)...)
	slightlyTooBig := append(pngBytes(t), make([]byte, 1<<20)...)

	for name, cover := range map[string][]byte{"Huge": huge, "Slightly Too Big": slightlyTooBig} {
		req := multipartRequest(t, http.MethodPost, "/add-game-to-database", map[string][]string{
			"name":        {name},
			"console_ids": {consoleID},
		}, "cover", cover)
		assert.Equal(t, http.StatusRequestEntityTooLarge, env.serve(req, user.Token).Code, name)
	}

	id, _ := strconv.Atoi(consoleID)
	w := env.do(http.MethodPost, "/add-game-to-database", user.Token, gin.H{
		"name":        "Huge Data URI",
		"console_ids": []int{id},
		"cover_art":   "data:image/png;base64," + base64.StdEncoding.EncodeToString(huge),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, int64(0), env.count(&models.Game{}))
}

func TestSearchGames(t *testing.T) {
	env := newTestEnv(t)
	user := env.register("samus")
	consoles := env.consoleIDs(2)

	for i, name := range []string{"Metroid Dread", "Metroid Prime", "Super Metroid", "Kid Icarus"} {
		w := env.do(http.MethodPost, "/add-game-to-database", user.Token, gin.H{
			"name":        name,
			"console_ids": []uint{consoles[i%2]},
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.do(http.MethodGet, "/api/search?q=metroid&limit=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[handler.PaginatedResponse[handler.GameResponse]](t, w)
	assert.Equal(t, int64(3), page.Meta.TotalItems)
	assert.Equal(t, 2, page.Meta.TotalPages)
	require.Len(t, page.Data, 2)
	assert.Nil(t, page.Data[0].InCollection, "anonymous searches carry no shelf flags")

	w = env.do(http.MethodGet, fmt.Sprintf("/api/search?q=metroid&console_id=%d", consoles[1]), "", nil)
	page = decode[handler.PaginatedResponse[handler.GameResponse]](t, w)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Metroid Prime", page.Data[0].Name)

	var dread models.Game
	require.NoError(t, env.db.Where("name = ?", "Metroid Dread").First(&dread).Error)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, fmt.Sprintf("/api/mywishlist/%d", user.ID), user.Token,
		gin.H{"game_id": dread.ID}).Code)

	w = env.do(http.MethodGet, "/api/search?q=dread", user.Token, nil)
	page = decode[handler.PaginatedResponse[handler.GameResponse]](t, w)
	require.Len(t, page.Data, 1)
	require.NotNil(t, page.Data[0].InWishlist)
	assert.True(t, *page.Data[0].InWishlist)
	assert.False(t, *page.Data[0].InCollection)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/search?console_id=abc", "", nil).Code)
}

func TestSearchTreatsWildcardsLiterally(t *testing.T) {
	env := newTestEnv(t)
	user := env.register("wario")
	for _, name := range []string{"Zelda", "Mario 100%", `Snake_Eater\Ocelot`} {
		env.createGame(user.Token, name)
	}

	names := func(q string) []string {
		w := env.do(http.MethodGet, "/api/search?q="+url.QueryEscape(q), "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var out []string
		for _, g := range decode[handler.PaginatedResponse[handler.GameResponse]](t, w).Data {
			out = append(out, g.Name)
		}
		return out
	}

	assert.Equal(t, []string{`Snake_Eater\Ocelot`}, names("_"))
	assert.Equal(t, []string{"Mario 100%"}, names("%"))
	assert.Equal(t, []string{"Mario 100%"}, names("0%"))
	assert.Equal(t, []string{`Snake_Eater\Ocelot`}, names(`r\o`))
	assert.Empty(t, names("z_l"))

	env.register("bandana_dee")
	env.register("bandanadee")
	w := env.do(http.MethodGet, "/api/users?q="+url.QueryEscape("a_d"), user.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	users := decode[handler.PaginatedResponse[handler.PublicUserResponse]](t, w).Data
	require.Len(t, users, 1)
	assert.Equal(t, "bandana_dee", users[0].Username)
}

func TestConsolesAndAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin("bowser")
	user := env.register("koopa")

	w := env.do(http.MethodGet, "/api/consoles", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[[]handler.ConsoleResponse](t, w))

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/api/admin/consoles", user.Token, gin.H{"name": "Dreamcast"}).Code)
	w = env.do(http.MethodPost, "/api/admin/consoles", admin.Token, gin.H{"name": "Dreamcast"})
	require.Equal(t, http.StatusCreated, w.Code)
	dreamcast := decode[handler.ConsoleResponse](t, w)
	assert.Equal(t, handler.StatusDuplicateResource, env.do(http.MethodPost, "/api/admin/consoles", admin.Token, gin.H{"name": "dreamcast"}).Code)

	game := env.createGame(user.Token, "Sonic Adventure")
	path := fmt.Sprintf("/api/admin/games/%d", game.ID)

	w = env.do(http.MethodPut, path, admin.Token, gin.H{"name": "Sonic Adventure DX", "console_ids": []uint{dreamcast.ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[handler.GameResponse](t, w)
	assert.Equal(t, "Sonic Adventure DX", updated.Name)
	require.Len(t, updated.Consoles, 1)
	assert.Equal(t, dreamcast.ID, updated.Consoles[0].ID)

	other := env.createGame(user.Token, "Crazy Taxi")
	assert.Equal(t, handler.StatusDuplicateResource,
		env.do(http.MethodPut, fmt.Sprintf("/api/admin/games/%d", other.ID), admin.Token, gin.H{"name": "sonic adventure dx"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPut, fmt.Sprintf("/api/admin/games/%d", other.ID), admin.Token, gin.H{"name": "   "}).Code)
	w = env.do(http.MethodGet, fmt.Sprintf("/api/games/%d", other.ID), "", nil)
	assert.Equal(t, "Crazy Taxi", decode[handler.GameResponse](t, w).Name)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodDelete, path, user.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/admin/games/9999", admin.Token, nil).Code)

	w = env.do(http.MethodDelete, fmt.Sprintf("/api/admin/consoles/%d", dreamcast.ID), admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.do(http.MethodGet, fmt.Sprintf("/api/games/%d", game.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[handler.GameResponse](t, w).Consoles)
}

func TestDeleteGameRemovesShelves(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin("ganon")
	user := env.register("impa")
	game := env.createGame(user.Token, "Ocarina of Time")
	wished := env.createGame(user.Token, "Majora's Mask")

	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, fmt.Sprintf("/api/mycollection/%d", user.ID), user.Token, gin.H{
		"game_id":     game.ID,
		"console_ids": env.consoleIDs(1),
		"details":     gin.H{"rating": 10},
	}).Code)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, fmt.Sprintf("/api/mywishlist/%d", admin.ID), admin.Token, gin.H{
		"game_id": game.ID,
	}).Code)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, fmt.Sprintf("/api/mywishlist/%d", user.ID), user.Token, gin.H{
		"game_id": wished.ID,
	}).Code)

	require.Equal(t, http.StatusOK, env.do(http.MethodDelete, fmt.Sprintf("/api/admin/games/%d", game.ID), admin.Token, nil).Code)

	assert.Equal(t, int64(0), env.count(&models.CollectionEntry{}))
	assert.Equal(t, int64(0), env.count(&models.GameDetails{}))
	assert.Equal(t, int64(1), env.count(&models.WishlistEntry{}), "other games are untouched")
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, fmt.Sprintf("/api/games/%d", game.ID), "", nil).Code)
}
