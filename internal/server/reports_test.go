package server

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"gameshelf/backend/internal/config"
	"gameshelf/backend/internal/handler"
	"gameshelf/backend/internal/metrics"
	"gameshelf/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reportEnvelope[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

func (e *testEnv) collect(u testUser, gameID uint, rating int) {
	e.t.Helper()
	body := gin.H{"game_id": gameID}
	if rating > 0 {
		body["details"] = gin.H{"rating": rating}
	}
	w := e.do(http.MethodPost, fmt.Sprintf("/api/mycollection/%d", u.ID), u.Token, body)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
}

func TestReports(t *testing.T) {
	env := newTestEnv(t)
	a := env.register("alpha")
	b := env.register("bravo")
	c := env.register("charlie")

	popular := env.createGame(a.Token, "Popular")
	niche := env.createGame(a.Token, "Niche")
	wanted := env.createGame(a.Token, "Wanted")

	env.collect(a, popular.ID, 6)
	env.collect(b, popular.ID, 8)
	env.collect(c, popular.ID, 0)
	env.collect(a, niche.ID, 10)
	for _, u := range []testUser{a, b, c} {
		require.Equal(t, http.StatusCreated, env.do(http.MethodPost, fmt.Sprintf("/api/mywishlist/%d", u.ID), u.Token,
			gin.H{"game_id": wanted.ID}).Code)
	}
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, fmt.Sprintf("/api/mywishlist/%d", b.ID), b.Token,
		gin.H{"game_id": niche.ID}).Code)
	env.befriend(a, b)

	w := env.do(http.MethodGet, "/api/reports/most-collected", a.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	collected := decode[reportEnvelope[[]handler.GameCountRow]](t, w)
	assert.Equal(t, handler.ReportMostCollected, collected.Type)
	require.Len(t, collected.Data, 2)
	assert.Equal(t, popular.ID, collected.Data[0].GameID)
	assert.Equal(t, int64(3), collected.Data[0].Count)
	assert.Equal(t, int64(1), collected.Data[1].Count)

	w = env.do(http.MethodGet, "/api/reports/most-wishlisted?limit=1", a.Token, nil)
	wished := decode[reportEnvelope[[]handler.GameCountRow]](t, w)
	require.Len(t, wished.Data, 1)
	assert.Equal(t, wanted.ID, wished.Data[0].GameID)
	assert.Equal(t, int64(3), wished.Data[0].Count)

	w = env.do(http.MethodGet, "/api/reports/highest-rated", a.Token, nil)
	rated := decode[reportEnvelope[[]handler.GameRatingRow]](t, w)
	require.Len(t, rated.Data, 2, "only rated games are ranked")
	assert.Equal(t, niche.ID, rated.Data[0].GameID)
	assert.InDelta(t, 10.0, rated.Data[0].AverageRating, 0.001)
	assert.Equal(t, popular.ID, rated.Data[1].GameID)
	assert.InDelta(t, 7.0, rated.Data[1].AverageRating, 0.001)
	assert.Equal(t, int64(2), rated.Data[1].Ratings)

	w = env.do(http.MethodGet, "/api/reports/totals", a.Token, nil)
	totals := decode[reportEnvelope[handler.TotalsReport]](t, w)
	assert.Equal(t, handler.TotalsReport{
		Users:             env.count(&models.User{}),
		Games:             env.count(&models.Game{}),
		CollectionEntries: env.count(&models.CollectionEntry{}),
		WishlistEntries:   env.count(&models.WishlistEntry{}),
		Friendships:       env.count(&models.Friendship{}),
		Messages:          env.count(&models.ChatMessage{}),
	}, totals.Data)
	assert.Equal(t, int64(3), totals.Data.Users)
	assert.Equal(t, int64(1), totals.Data.Friendships)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/reports/nonsense", a.Token, nil).Code)
}

func TestHighestRatedTieBreaksOnRatingCount(t *testing.T) {
	env := newTestEnv(t)
	a := env.register("delta")
	b := env.register("echo")
	once := env.createGame(a.Token, "Rated Once")
	twice := env.createGame(a.Token, "Rated Twice")

	env.collect(a, once.ID, 9)
	env.collect(a, twice.ID, 9)
	env.collect(b, twice.ID, 9)

	w := env.do(http.MethodGet, "/api/reports/highest-rated", a.Token, nil)
	rated := decode[reportEnvelope[[]handler.GameRatingRow]](t, w)
	require.Len(t, rated.Data, 2)
	assert.Equal(t, twice.ID, rated.Data[0].GameID)
}

func TestReportsAreCached(t *testing.T) {
	env := newTestEnv(t)
	config.AppConfig.ReportCacheTTL = time.Minute
	t.Cleanup(handler.ResetReportCache)
	a := env.register("foxtrot")

	totals := func() handler.TotalsReport {
		w := env.do(http.MethodGet, "/api/reports/totals", a.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		return decode[reportEnvelope[handler.TotalsReport]](t, w).Data
	}
	hits := func() float64 {
		return testutil.ToFloat64(metrics.ReportCacheLookups.WithLabelValues("hit"))
	}

	first := totals()
	before := hits()
	assert.Equal(t, first, totals())
	assert.Equal(t, before+1, hits(), "the second read is served from cache")

	// Any committed write drops the cache.
	b := env.register("golf")
	game := env.createGame(a.Token, "Fresh Game")
	fresh := totals()
	assert.Equal(t, int64(2), fresh.Users)
	assert.Equal(t, int64(1), fresh.Games)

	env.collect(b, game.ID, 7)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, fmt.Sprintf("/api/mywishlist/%d", a.ID), a.Token,
		gin.H{"game_id": game.ID}).Code)
	env.befriend(a, b)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, fmt.Sprintf("/api/chats/%d/messages", b.ID), a.Token,
		gin.H{"text": "hello"}).Code)
	assert.Equal(t, handler.TotalsReport{
		Users:             env.count(&models.User{}),
		Games:             env.count(&models.Game{}),
		CollectionEntries: env.count(&models.CollectionEntry{}),
		WishlistEntries:   env.count(&models.WishlistEntry{}),
		Friendships:       env.count(&models.Friendship{}),
		Messages:          env.count(&models.ChatMessage{}),
	}, totals())

	// Failed writes keep the cache.
	before = hits()
	assert.Equal(t, handler.StatusDuplicateResource, env.do(http.MethodPost, fmt.Sprintf("/api/mywishlist/%d", a.ID), a.Token,
		gin.H{"game_id": game.ID}).Code)
	totals()
	assert.Equal(t, before+1, hits())
}
