package handler

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"gameshelf/backend/internal/config"
	"gameshelf/backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"
)

const (
	ReportMostCollected  = "most-collected"
	ReportMostWishlisted = "most-wishlisted"
	ReportHighestRated   = "highest-rated"
	ReportTotals         = "totals"
)

const reportCacheSize = 64

// region --- DTOs ---

type GameCountRow struct {
	GameID   uint   `json:"game_id"`
	Name     string `json:"name"`
	CoverArt string `json:"cover_art"`
	Count    int64  `json:"count"`
}

type GameRatingRow struct {
	GameID        uint    `json:"game_id"`
	Name          string  `json:"name"`
	CoverArt      string  `json:"cover_art"`
	AverageRating float64 `json:"average_rating"`
	Ratings       int64   `json:"ratings"`
}

type TotalsReport struct {
	Users             int64 `json:"users"`
	Games             int64 `json:"games"`
	CollectionEntries int64 `json:"collection_entries"`
	WishlistEntries   int64 `json:"wishlist_entries"`
	Friendships       int64 `json:"friendships"`
	Messages          int64 `json:"messages"`
}

type ReportResponse struct {
	Type        string    `json:"type" example:"most-collected"`
	GeneratedAt time.Time `json:"generated_at"`
	Data        any       `json:"data"`
}

// endregion

var (
	reportCacheMu  sync.Mutex
	reportCache    *expirable.LRU[string, ReportResponse]
	reportCacheTTL time.Duration
)

// cachedReports returns the report cache for the configured TTL, or nil when
// caching is disabled.
func cachedReports() *expirable.LRU[string, ReportResponse] {
	ttl := config.AppConfig.ReportCacheTTL
	if ttl <= 0 {
		return nil
	}

	reportCacheMu.Lock()
	defer reportCacheMu.Unlock()
	if reportCache == nil || reportCacheTTL != ttl {
		reportCache = expirable.NewLRU[string, ReportResponse](reportCacheSize, nil, ttl)
		reportCacheTTL = ttl
	}
	return reportCache
}

// ResetReportCache drops every cached report.
func ResetReportCache() {
	reportCacheMu.Lock()
	defer reportCacheMu.Unlock()
	if reportCache != nil {
		reportCache.Purge()
	}
}

// RefreshReports drops the cached reports once a write handler succeeds, so
// report reads after a committed write see its rows.
func RefreshReports() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.Method == http.MethodGet || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		ResetReportCache()
	}
}

// GetReport godoc
// @Summary      Get an aggregate report
// @Description  most-collected, most-wishlisted and highest-rated return the top games (limit, default 10). totals returns the row count of each main table. Results are cached for a short time.
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        reportType  path   string  true   "Report type" Enums(most-collected, most-wishlisted, highest-rated, totals)
// @Param        limit       query  int     false  "Number of games" default(10)
// @Success      200  {object}  ReportResponse
// @Failure      400  {object}  ErrorResponse "Unknown report type"
// @Router       /api/reports/{reportType} [get]
func GetReport(c *gin.Context) {
	reportType := c.Param("reportType")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	var build func(*gorm.DB, int) (any, error)
	switch reportType {
	case ReportMostCollected:
		build = func(tx *gorm.DB, n int) (any, error) { return gameCounts(tx, "collection_entries", n) }
	case ReportMostWishlisted:
		build = func(tx *gorm.DB, n int) (any, error) { return gameCounts(tx, "wishlist_entries", n) }
	case ReportHighestRated:
		build = highestRated
	case ReportTotals:
		build = func(tx *gorm.DB, _ int) (any, error) { return totals(tx) }
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown report type"})
		return
	}

	key := reportType + ":" + strconv.Itoa(limit)
	cache := cachedReports()
	if cache != nil {
		if report, ok := cache.Get(key); ok {
			metrics.ReportCacheLookups.WithLabelValues("hit").Inc()
			c.JSON(http.StatusOK, report)
			return
		}
		metrics.ReportCacheLookups.WithLabelValues("miss").Inc()
	}

	data, err := build(db(c), limit)
	if err != nil {
		internalError(c, err, "Failed to build report")
		return
	}

	report := ReportResponse{Type: reportType, GeneratedAt: time.Now().UTC(), Data: data}
	if cache != nil {
		cache.Add(key, report)
	}
	c.JSON(http.StatusOK, report)
}

// gameCounts ranks games by their number of rows in table.
func gameCounts(tx *gorm.DB, table string, limit int) ([]GameCountRow, error) {
	rows := []GameCountRow{}
	err := tx.Table(table+" AS e").
		Select("g.id AS game_id, g.name AS name, g.cover_art AS cover_art, COUNT(*) AS count").
		Joins("JOIN games g ON g.id = e.game_id").
		Group("g.id, g.name, g.cover_art").
		Order("count DESC, g.name ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func highestRated(tx *gorm.DB, limit int) (any, error) {
	rows := []GameRatingRow{}
	err := tx.Table("game_details AS d").
		Select("g.id AS game_id, g.name AS name, g.cover_art AS cover_art, AVG(d.rating) AS average_rating, COUNT(d.rating) AS ratings").
		Joins("JOIN collection_entries e ON e.id = d.collection_entry_id").
		Joins("JOIN games g ON g.id = e.game_id").
		Where("d.rating IS NOT NULL").
		Group("g.id, g.name, g.cover_art").
		Order("average_rating DESC, ratings DESC, g.name ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func totals(tx *gorm.DB) (TotalsReport, error) {
	var t TotalsReport
	counts := []struct {
		table string
		dst   *int64
	}{
		{"users", &t.Users},
		{"games", &t.Games},
		{"collection_entries", &t.CollectionEntries},
		{"wishlist_entries", &t.WishlistEntries},
		{"friendships", &t.Friendships},
		{"chat_messages", &t.Messages},
	}
	for _, c := range counts {
		q := tx.Table(c.table)
		if c.table == "users" {
			q = q.Where("deleted_at IS NULL")
		}
		if err := q.Count(c.dst).Error; err != nil {
			return t, err
		}
	}
	return t, nil
}
