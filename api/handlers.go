package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/najoast/catalog/catalog"
	"github.com/najoast/catalog/choreography"
	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
)

type addTrackRequest struct {
	Caller     string       `json:"caller" binding:"required"`
	Title      string       `json:"title"`
	Collection *string      `json:"collection"`
	Value      ledger.Coins `json:"value"`
}

type addTrackResponse struct {
	Operation  uuid.UUID            `json:"operation"`
	Outcome    string               `json:"outcome"`
	ExitCode   int                  `json:"exit_code"`
	Reason     string               `json:"reason,omitempty"`
	Refund     ledger.Coins         `json:"refund"`
	Track      ledger.Address       `json:"track"`
	Collection *ledger.Address      `json:"collection,omitempty"`
	Fees       ledger.Coins         `json:"fees"`
	Phase      *choreography.Record `json:"phase,omitempty"`
	Trace      []TxView             `json:"trace"`
}

type sendMessageRequest struct {
	From  string          `json:"from" binding:"required"`
	To    string          `json:"to" binding:"required"`
	Value ledger.Coins    `json:"value"`
	Op    string          `json:"op"`
	Body  json.RawMessage `json:"body"`
	// Raw is the hex wire form (op code + payload), instead of Op and Body.
	Raw string `json:"raw"`
}

type operationResponse struct {
	Operation uuid.UUID    `json:"operation"`
	Fees      ledger.Coins `json:"fees"`
	Trace     []TxView     `json:"trace"`
}

func fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, core.ErrInsufficientValue):
		return http.StatusPaymentRequired
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrSystemStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// wait blocks on op for at most the request timeout.
func (s *Server) wait(c *gin.Context, op *core.Operation) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.API.RequestTimeout)
	defer cancel()
	if err := op.Wait(ctx); err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":     "operation still in flight",
			"operation": op.ID,
		})
		return false
	}
	return true
}

func (s *Server) addTrack(c *gin.Context) {
	var req addTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	w, err := s.sys.OpenWallet(req.Caller, s.opts.WalletFunding)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	value := req.Value
	if value == 0 {
		value = s.sys.Fees().EstimateAddTrack(req.Collection != nil)
	}

	op, err := s.cat.AddTrack(c.Request.Context(), w, value, req.Title, req.Collection)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	if !s.wait(c, op) {
		return
	}

	resp := addTrackResponse{
		Operation: op.ID,
		Outcome:   "unknown",
		Fees:      op.Fees(),
		Trace:     Trace(s.sys.Book(), op.Transactions()),
	}
	var colAddr *ledger.Address
	if req.Collection != nil {
		a := catalog.CollectionAddress(*req.Collection, s.cat.Address())
		colAddr = &a
		resp.Collection = colAddr
	}
	resp.Track = catalog.TrackAddress(req.Title, colAddr, s.cat.Address())

	if ex, refund, ok := catalog.Outcome(op); ok {
		resp.Outcome = ex.Outcome.String()
		resp.ExitCode = ex.ExitCode
		resp.Reason = ex.Reason
		resp.Refund = refund
	}
	if s.opts.Tracker != nil {
		if rec, ok := s.opts.Tracker.Get(op.ID); ok {
			resp.Phase = &rec
		}
	}
	if resp.Outcome == "succeeded" {
		if req.Collection != nil {
			s.label(*colAddr, "collection/"+*req.Collection)
			s.label(resp.Track, "track/"+*req.Collection+"/"+req.Title)
		} else {
			s.label(resp.Track, "track/"+req.Title)
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) label(addr ledger.Address, name string) {
	if err := s.sys.Book().Label(addr, name); err != nil {
		s.log.Debug("label skipped", zap.String("name", name), zap.Error(err))
	}
}

// resolve accepts an address or an address-book name.
func (s *Server) resolve(ref string) (ledger.Address, error) {
	if a, err := ledger.ParseAddress(ref); err == nil {
		return a, nil
	}
	if a, ok := s.sys.Book().Lookup(ref); ok {
		return a, nil
	}
	return ledger.Address{}, fmt.Errorf("unknown address or name %q", ref)
}

func (s *Server) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	to, err := s.resolve(req.To)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	var body core.Body
	switch {
	case req.Raw != "" && req.Op != "":
		fail(c, http.StatusBadRequest, errors.New("op and raw are mutually exclusive"))
		return
	case req.Raw != "":
		data, err := hex.DecodeString(req.Raw)
		if err != nil {
			fail(c, http.StatusBadRequest, fmt.Errorf("raw: %w", err))
			return
		}
		if body, err = s.registry.Decode(data); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
	case req.Op != "":
		body, err = s.registry.DecodeJSON(req.Op, req.Body)
		if err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
	}

	w, err := s.sys.OpenWallet(req.From, s.opts.WalletFunding)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	op, err := w.Send(c.Request.Context(), to, req.Value, body, nil)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	if !s.wait(c, op) {
		return
	}
	c.JSON(http.StatusOK, operationResponse{
		Operation: op.ID,
		Fees:      op.Fees(),
		Trace:     Trace(s.sys.Book(), op.Transactions()),
	})
}

func (s *Server) catalogInfo(c *gin.Context) {
	ctx := c.Request.Context()
	owner, err := s.cat.Owner(ctx)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	tracks, err := s.cat.TotalTracks(ctx)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	collections, err := s.cat.TotalCollections(ctx)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	balance, _ := s.sys.BalanceOf(s.cat.Address())
	c.JSON(http.StatusOK, gin.H{
		"address":           s.cat.Address(),
		"owner":             owner,
		"balance":           balance,
		"total_tracks":      tracks,
		"total_collections": collections,
		"fees":              s.sys.Fees(),
	})
}

func (s *Server) trackAddress(c *gin.Context) {
	title, ok := c.GetQuery("title")
	if !ok {
		fail(c, http.StatusBadRequest, errors.New("title is required"))
		return
	}
	var col *string
	if v, ok := c.GetQuery("collection"); ok {
		col = &v
	}
	addr, err := s.cat.TrackAddress(c.Request.Context(), title, col)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr, "deployed": s.sys.Exists(addr)})
}

func (s *Server) collectionAddress(c *gin.Context) {
	title, ok := c.GetQuery("title")
	if !ok {
		fail(c, http.StatusBadRequest, errors.New("title is required"))
		return
	}
	addr, err := s.cat.CollectionAddress(c.Request.Context(), title)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr, "deployed": s.sys.Exists(addr)})
}

// actorParam parses :address and checks the template deployed there.
func (s *Server) actorParam(c *gin.Context, want ledger.TemplateID) (ledger.Address, bool) {
	addr, err := ledger.ParseAddress(c.Param("address"))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return addr, false
	}
	tmpl, ok := s.sys.TemplateOf(addr)
	if !ok {
		fail(c, http.StatusNotFound, fmt.Errorf("%s: %w", addr.Short(), core.ErrAccountNotFound))
		return addr, false
	}
	if tmpl != want {
		fail(c, http.StatusNotFound, fmt.Errorf("%s is a %s, not a %s", addr.Short(), tmpl, want))
		return addr, false
	}
	return addr, true
}

func (s *Server) track(c *gin.Context) {
	addr, ok := s.actorParam(c, catalog.TrackTemplate)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	t := catalog.NewTrackClient(s.sys, addr)

	title, err := t.Title(ctx)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	col, err := t.Collection(ctx)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	owner, err := t.Owner(ctx)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	initialized, err := t.Initialized(ctx)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	balance, _ := s.sys.BalanceOf(addr)
	c.JSON(http.StatusOK, gin.H{
		"address":     addr,
		"title":       title,
		"collection":  col,
		"owner":       owner,
		"initialized": initialized,
		"balance":     balance,
	})
}

func (s *Server) index(c *gin.Context) (*catalog.Index, bool) {
	if s.opts.Index == nil {
		fail(c, http.StatusNotFound, errors.New("track index is disabled"))
		return nil, false
	}
	return s.opts.Index, true
}

func (s *Server) tracksByOwner(c *gin.Context) {
	idx, ok := s.index(c)
	if !ok {
		return
	}
	ref, ok := c.GetQuery("owner")
	if !ok {
		fail(c, http.StatusBadRequest, errors.New("owner is required"))
		return
	}
	owner, err := s.resolve(ref)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	tracks := idx.ByOwner(owner)
	c.JSON(http.StatusOK, gin.H{"owner": owner, "tracks": tracks, "count": len(tracks)})
}

func (s *Server) recentTracks(c *gin.Context) {
	idx, ok := s.index(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": idx.Recent(), "total": idx.Count()})
}

func (s *Server) collection(c *gin.Context) {
	addr, ok := s.actorParam(c, catalog.CollectionTemplate)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	col := catalog.NewCollectionClient(s.sys, addr)

	title, err := col.Title(ctx)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	owner, err := col.Owner(ctx)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	tracks, err := col.Tracks(ctx)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	initialized, err := col.Initialized(ctx)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	if tracks == nil {
		tracks = []ledger.Address{}
	}
	balance, _ := s.sys.BalanceOf(addr)
	c.JSON(http.StatusOK, gin.H{
		"address":     addr,
		"title":       title,
		"owner":       owner,
		"tracks":      tracks,
		"track_count": len(tracks),
		"initialized": initialized,
		"balance":     balance,
	})
}

func (s *Server) actors(c *gin.Context) {
	stats := s.sys.Stats()
	book := s.sys.Book()
	for i := range stats {
		stats[i].Name = book.Name(stats[i].Address)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Address.String() < stats[j].Address.String()
	})
	c.JSON(http.StatusOK, gin.H{"actors": stats, "count": len(stats)})
}

func (s *Server) operation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if s.opts.Tracker == nil {
		fail(c, http.StatusNotFound, errors.New("operation tracking is disabled"))
		return
	}
	rec, ok := s.opts.Tracker.Get(id)
	if !ok {
		fail(c, http.StatusNotFound, fmt.Errorf("operation %s not found", id))
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status":         "ok",
		"catalog":        s.cat.Address(),
		"actors":         len(s.sys.Stats()),
		"fees_collected": s.sys.FeesCollected(),
		"minted":         s.sys.Minted(),
		"supply":         s.sys.Supply(),
	}
	if s.opts.Tracker != nil {
		resp["phases"] = s.opts.Tracker.Counts()
	}
	c.JSON(http.StatusOK, resp)
}
