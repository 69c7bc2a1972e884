package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/parkit-backend/internal/parking"
)

// SnapshotCache is the status cache kept in redis
type SnapshotCache interface {
	CachedStatus(ctx context.Context) (*parking.StatusRecord, error)
	CacheStatus(ctx context.Context, rec parking.StatusRecord) error
}

// GetSlots serves the cached status snapshot when there is one, otherwise a
// fresh read of the status record
func GetSlots(svc *parking.Service, cache SnapshotCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if cache != nil {
			rec, err := cache.CachedStatus(ctx)
			if err != nil {
				log.Printf("[api] status cache read failed: %v", err)
			} else if rec != nil {
				respondOK(c, http.StatusOK, rec)
				return
			}
		}

		rec, err := svc.Status(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		if cache != nil {
			if err := cache.CacheStatus(ctx, rec); err != nil {
				log.Printf("[api] status cache write failed: %v", err)
			}
		}
		respondOK(c, http.StatusOK, rec)
	}
}
