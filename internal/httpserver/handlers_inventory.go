package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campreserv/core/pkg/inventory"
)

type blockRequest struct {
	SiteIDs   []string `json:"site_ids"`
	From      int64    `json:"from"`
	To        int64    `json:"to"`
	Reason    string   `json:"reason"`
	LockID    string   `json:"lock_id"`
	CreatedBy string   `json:"created_by,omitempty"`
}

type blockPayload struct {
	BlockID    string   `json:"block_id"`
	SiteIDs    []string `json:"site_ids"`
	From       int64    `json:"from"`
	To         int64    `json:"to"`
	Reason     string   `json:"reason"`
	State      string   `json:"state"`
	CreatedBy  string   `json:"created_by,omitempty"`
	CreatedAt  int64    `json:"created_at"`
	ReleasedAt int64    `json:"released_at,omitempty"`
}

func (server *Server) handleCreateBlock(ctx *gin.Context) {
	var request blockRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	tenantID, err := inventory.NewTenantID(getClaims(ctx).TenantID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	siteIDs, err := parseSiteIDs(request.SiteIDs)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	window, err := inventory.NewWindow(request.From, request.To)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	reason, err := inventory.ParseBlockReason(request.Reason)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	lockID, err := inventory.NewLockID(request.LockID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	createdBy := request.CreatedBy
	if createdBy == "" {
		createdBy = getClaims(ctx).Subject
	}
	block, err := server.blocks.CreateBlock(ctx.Request.Context(), inventory.BlockInput{
		TenantID:  tenantID,
		SiteIDs:   siteIDs,
		Window:    window,
		Reason:    reason,
		LockID:    lockID,
		CreatedBy: createdBy,
	})
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, blockToPayload(block))
}

func (server *Server) handleReleaseBlock(ctx *gin.Context) {
	tenantID, err := inventory.NewTenantID(getClaims(ctx).TenantID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	blockID, err := inventory.NewBlockID(ctx.Param("id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	block, err := server.blocks.ReleaseBlock(ctx.Request.Context(), tenantID, blockID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, blockToPayload(block))
}

func (server *Server) handleAvailability(ctx *gin.Context) {
	tenantID, err := inventory.NewTenantID(getClaims(ctx).TenantID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	siteIDs, err := parseSiteIDs(strings.Split(ctx.Query("siteIds"), ","))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	from, _ := strconv.ParseInt(ctx.Query("from"), 10, 64)
	to, _ := strconv.ParseInt(ctx.Query("to"), 10, 64)
	window, err := inventory.NewWindow(from, to)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	availability, err := server.blocks.SiteAvailability(ctx.Request.Context(), tenantID, siteIDs, window)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	sites := make([]gin.H, 0, len(availability))
	for _, entry := range availability {
		payload := gin.H{
			"site_id":   entry.SiteID.String(),
			"available": entry.Available,
		}
		if entry.Conflict != "" {
			payload["conflict"] = entry.Conflict
		}
		sites = append(sites, payload)
	}
	ctx.JSON(http.StatusOK, gin.H{"sites": sites})
}

type groupRequest struct {
	SharedPayment bool `json:"shared_payment"`
	SharedComm    bool `json:"shared_comm"`
}

func (server *Server) handleCreateGroup(ctx *gin.Context) {
	var request groupRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	tenantID, err := inventory.NewTenantID(getClaims(ctx).TenantID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	group, err := server.groups.CreateGroup(ctx.Request.Context(), tenantID, request.SharedPayment, request.SharedComm)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"group_id":       group.GroupID.String(),
		"shared_payment": group.SharedPayment,
		"shared_comm":    group.SharedComm,
		"created_at":     group.CreatedUnixUTC,
	})
}

func (server *Server) handleGetGroup(ctx *gin.Context) {
	tenantID, err := inventory.NewTenantID(getClaims(ctx).TenantID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	groupID, err := inventory.NewGroupID(ctx.Param("id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	group, err := server.groups.Group(ctx.Request.Context(), tenantID, groupID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	members, err := server.groups.Members(ctx.Request.Context(), tenantID, groupID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	memberPayloads := make([]gin.H, 0, len(members))
	for _, member := range members {
		memberPayloads = append(memberPayloads, gin.H{
			"reservation_id": member.ReservationID.String(),
			"role":           member.Role.String(),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"group_id":       group.GroupID.String(),
		"shared_payment": group.SharedPayment,
		"shared_comm":    group.SharedComm,
		"created_at":     group.CreatedUnixUTC,
		"reservations":   memberPayloads,
	})
}

type linkReservationRequest struct {
	ReservationID string `json:"reservation_id"`
	Role          string `json:"role"`
}

func (server *Server) handleLinkReservation(ctx *gin.Context) {
	var request linkReservationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	tenantID, err := inventory.NewTenantID(getClaims(ctx).TenantID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	groupID, err := inventory.NewGroupID(ctx.Param("id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	reservationID, err := inventory.NewReservationID(request.ReservationID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	role, err := inventory.ParseGroupRole(request.Role)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if err := server.groups.LinkReservation(ctx.Request.Context(), tenantID, groupID, reservationID, role); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "linked"})
}

func (server *Server) handleUnlinkReservation(ctx *gin.Context) {
	tenantID, err := inventory.NewTenantID(getClaims(ctx).TenantID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	groupID, err := inventory.NewGroupID(ctx.Param("id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	reservationID, err := inventory.NewReservationID(ctx.Param("reservationId"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if err := server.groups.UnlinkReservation(ctx.Request.Context(), tenantID, groupID, reservationID); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "unlinked"})
}

func (server *Server) handleDeleteGroup(ctx *gin.Context) {
	tenantID, err := inventory.NewTenantID(getClaims(ctx).TenantID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	groupID, err := inventory.NewGroupID(ctx.Param("id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if err := server.groups.DeleteGroup(ctx.Request.Context(), tenantID, groupID); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func parseSiteIDs(raw []string) ([]inventory.SiteID, error) {
	siteIDs := make([]inventory.SiteID, 0, len(raw))
	for _, value := range raw {
		if strings.TrimSpace(value) == "" {
			continue
		}
		siteID, err := inventory.NewSiteID(value)
		if err != nil {
			return nil, err
		}
		siteIDs = append(siteIDs, siteID)
	}
	return siteIDs, nil
}

func blockToPayload(block inventory.Block) blockPayload {
	siteIDs := make([]string, 0, len(block.SiteIDs))
	for _, siteID := range block.SiteIDs {
		siteIDs = append(siteIDs, siteID.String())
	}
	return blockPayload{
		BlockID:    block.BlockID.String(),
		SiteIDs:    siteIDs,
		From:       block.Window.StartUnixUTC(),
		To:         block.Window.EndUnixUTC(),
		Reason:     block.Reason.String(),
		State:      block.State.String(),
		CreatedBy:  block.CreatedBy,
		CreatedAt:  block.CreatedUnixUTC,
		ReleasedAt: block.ReleasedUnixUTC,
	}
}
