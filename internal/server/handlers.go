package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"FlightPool/internal/event"
)

type createPoolRequest struct {
	PremiumAmount *int64 `json:"premium_amount" binding:"required"`
	PayoutAmount  *int64 `json:"payout_amount" binding:"required"`
}

func (s *Server) createPool(c *gin.Context) {
	var req createPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "premium_amount and payout_amount are required"})
		return
	}

	res := s.engine.Submit(c.Request.Context(), &event.PoolCreated{
		Pool:          uuid.New(),
		PremiumAmount: *req.PremiumAmount,
		PayoutAmount:  *req.PayoutAmount,
		Timestamp:     time.Now().UTC(),
	})
	if res.Err != nil {
		s.fail(c, res.Err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"pool_id":        res.PoolID.String(),
		"premium_amount": *req.PremiumAmount,
		"payout_amount":  *req.PayoutAmount,
		"sequence":       res.Sequence,
	})
}

func (s *Server) listPools(c *gin.Context) {
	handles := s.registry.List()
	pools := make([]gin.H, 0, len(handles))
	for _, h := range handles {
		pools = append(pools, gin.H{
			"pool_id":        h.PoolID.String(),
			"premium_amount": h.PremiumAmount,
			"payout_amount":  h.PayoutAmount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"pools": pools})
}

func (s *Server) getPool(c *gin.Context) {
	poolID, ok := parsePoolID(c)
	if !ok {
		return
	}
	detail, err := s.queries.GetPool(c.Request.Context(), poolID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type addFundsRequest struct {
	Funder string `json:"funder"`
	Amount *int64 `json:"amount" binding:"required"`
}

func (s *Server) addFunds(c *gin.Context) {
	poolID, ok := parsePoolID(c)
	if !ok {
		return
	}
	var req addFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}
	funder := uuid.Nil
	if req.Funder != "" {
		parsed, err := uuid.Parse(req.Funder)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "funder must be a UUID"})
			return
		}
		funder = parsed
	}

	res := s.engine.Submit(c.Request.Context(), &event.FundsAdded{
		DepositID: uuid.New(),
		Pool:      poolID,
		Funder:    funder,
		Amount:    *req.Amount,
		Timestamp: time.Now().UTC(),
	})
	if res.Err != nil {
		s.fail(c, res.Err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pool_id":  poolID.String(),
		"amount":   *req.Amount,
		"sequence": res.Sequence,
	})
}

type purchasePolicyRequest struct {
	Policyholder    string `json:"policyholder" binding:"required"`
	FlightNumber    string `json:"flight_number" binding:"required"`
	DepartureTimeUs int64  `json:"departure_time_us"`
	Payment         *int64 `json:"payment" binding:"required"`
}

func (s *Server) purchasePolicy(c *gin.Context) {
	poolID, ok := parsePoolID(c)
	if !ok {
		return
	}
	var req purchasePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "policyholder, flight_number and payment are required"})
		return
	}
	holder, err := uuid.Parse(req.Policyholder)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "policyholder must be a UUID"})
		return
	}

	res := s.engine.Submit(c.Request.Context(), &event.PolicyPurchased{
		PurchaseID:    uuid.New(),
		Pool:          poolID,
		Policyholder:  holder,
		FlightNumber:  req.FlightNumber,
		DepartureTime: time.UnixMicro(req.DepartureTimeUs).UTC(),
		Payment:       *req.Payment,
		Timestamp:     time.Now().UTC(),
	})
	if res.Err != nil {
		s.fail(c, res.Err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"pool_id":   poolID.String(),
		"policy_id": res.PolicyID,
		"sequence":  res.Sequence,
	})
}

func (s *Server) listPolicies(c *gin.Context) {
	poolID, ok := parsePoolID(c)
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	offset, _ := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)

	policies, err := s.queries.ListPolicies(c.Request.Context(), poolID, limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"policies": policies})
}

func (s *Server) getPolicy(c *gin.Context) {
	poolID, ok := parsePoolID(c)
	if !ok {
		return
	}
	policyID, err := strconv.ParseInt(c.Param("policy_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "policy_id must be an integer"})
		return
	}
	detail, err := s.queries.GetPolicy(c.Request.Context(), poolID, policyID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type processClaimRequest struct {
	PolicyID  *int64 `json:"policy_id" binding:"required"`
	IsDelayed *bool  `json:"is_delayed" binding:"required"`
}

func (s *Server) processClaim(c *gin.Context) {
	poolID, ok := parsePoolID(c)
	if !ok {
		return
	}
	var req processClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "policy_id and is_delayed are required"})
		return
	}

	res := s.engine.Submit(c.Request.Context(), &event.ClaimRequested{
		ClaimID:   uuid.New(),
		Pool:      poolID,
		PolicyID:  *req.PolicyID,
		IsDelayed: *req.IsDelayed,
		Timestamp: time.Now().UTC(),
	})
	if res.Err != nil {
		s.fail(c, res.Err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pool_id":   poolID.String(),
		"policy_id": *req.PolicyID,
		"eligible":  res.Eligible,
		"sequence":  res.Sequence,
	})
}

func (s *Server) journalHistory(c *gin.Context) {
	poolID, ok := parsePoolID(c)
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	entries, err := s.queries.GetJournalHistory(c.Request.Context(), poolID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"journal": entries})
}

func (s *Server) verifyIntegrity(c *gin.Context) {
	report, err := s.queries.VerifyIntegrity(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type delayStatusRequest struct {
	IsDelayed *bool `json:"is_delayed" binding:"required"`
}

func (s *Server) setDelayStatus(c *gin.Context) {
	flight := c.Param("flight_number")
	var req delayStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_delayed is required"})
		return
	}
	s.oracle.SetDelayStatus(flight, *req.IsDelayed)
	c.JSON(http.StatusOK, gin.H{
		"flight_number": flight,
		"is_delayed":    *req.IsDelayed,
	})
}

func (s *Server) getDelayStatus(c *gin.Context) {
	flight := c.Param("flight_number")
	c.JSON(http.StatusOK, gin.H{
		"flight_number": flight,
		"is_delayed":    s.oracle.GetDelayStatus(flight),
	})
}
