package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"harborcast/internal/ingress"
	"harborcast/internal/livekit"
	"harborcast/internal/store"
	"harborcast/pkg/logging"
)

const viewerTokenTTL = 4 * time.Hour

// HandleReissueIngress tears down the caller's existing ingest setup and
// issues a fresh credential. The authenticated user is always the host.
func HandleReissueIngress(c *gin.Context) {
	host := ingress.Host{
		ID:       c.GetString("user_id"),
		Username: c.GetString("username"),
	}

	creds, err := ingressManager.Reissue(c.Request.Context(), host)
	if err != nil {
		logger.WithFields(logging.Fields{"host_id": host.ID, "error": err}).Error("Failed to reissue ingress")
		if metrics != nil && metrics.IngressReissues != nil {
			metrics.IngressReissues.WithLabelValues("error").Inc()
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reissue failed"})
		return
	}

	if metrics != nil && metrics.IngressReissues != nil {
		metrics.IngressReissues.WithLabelValues("success").Inc()
	}
	c.JSON(http.StatusOK, gin.H{
		"ingressId": creds.IngressID,
		"serverUrl": creds.ServerURL,
		"streamKey": creds.StreamKey,
	})
}

// HandleGetStream returns liveness and connection metadata for a host's
// stream. The stream key is only included for the owning host, decrypted
// on the way out.
func HandleGetStream(c *gin.Context) {
	hostID := c.Param("hostId")

	stream, err := db.StreamByHostID(c.Request.Context(), hostID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown stream"})
			return
		}
		logger.WithFields(logging.Fields{"host_id": hostID, "error": err}).Error("Failed to load stream")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	resp := gin.H{
		"id":        stream.ID,
		"hostId":    stream.HostID,
		"username":  stream.Username,
		"isLive":    stream.IsLive,
		"serverUrl": stream.ServerURL,
	}
	if c.GetString("user_id") == stream.HostID && stream.StreamKey != "" {
		key, err := ingressManager.Encryptor.Decrypt(stream.StreamKey)
		if err != nil {
			logger.WithFields(logging.Fields{"host_id": hostID, "error": err}).Error("Failed to decrypt stream key")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "key unavailable"})
			return
		}
		resp["streamKey"] = key
	}
	c.JSON(http.StatusOK, resp)
}

type viewerTokenRequest struct {
	HostID string `json:"hostId" binding:"required"`
}

// HandleViewerToken issues a watch-only room token. Authenticated users
// join under their own identity; everyone else gets a guest identity.
func HandleViewerToken(c *gin.Context) {
	var req viewerTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hostId is required"})
		return
	}

	if _, err := db.StreamByHostID(c.Request.Context(), req.HostID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown stream"})
			return
		}
		logger.WithFields(logging.Fields{"host_id": req.HostID, "error": err}).Error("Failed to load stream")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	identity := c.GetString("user_id")
	name := c.GetString("username")
	if identity == "" {
		identity = "guest-" + uuid.New().String()
		name = "Guest"
	}
	if identity == req.HostID {
		// The host joining their own room as a viewer would collide with
		// the ingress participant identity.
		identity = "host-viewer-" + identity
	}

	token, err := livekit.ViewerToken(mediaAPIKey, mediaAPISecret, req.HostID, identity, name, viewerTokenTTL)
	if err != nil {
		logger.WithFields(logging.Fields{"host_id": req.HostID, "error": err}).Error("Failed to sign viewer token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token signing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "identity": identity})
}
