package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"wolf-fhs280/config"
	"wolf-fhs280/internal/collector"
	"wolf-fhs280/internal/heatpump"
	"wolf-fhs280/internal/metrics"
	"wolf-fhs280/internal/storage"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type Server struct {
	router    *gin.Engine
	server    *http.Server
	collector *collector.Collector
	db        *storage.Database
	metrics   *metrics.Metrics
	port      int
	config    *config.Config
}

type ServerConfig struct {
	Port      int
	Collector *collector.Collector
	Database  *storage.Database
	Metrics   *metrics.Metrics // nil disables /metrics
	Config    *config.Config
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:    router,
		collector: cfg.Collector,
		db:        cfg.Database,
		metrics:   cfg.Metrics,
		port:      cfg.Port,
		config:    cfg.Config,
	}

	s.setupRoutes()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api/v1")
	{
		api.GET("/status", s.statusHandler)
		api.GET("/entities", s.entitiesHandler)
		api.GET("/fields", s.fieldsHandler)
		api.GET("/fields/:name", s.fieldHandler)
		api.PUT("/fields/:name", s.writeFieldHandler)
		api.POST("/clock/sync", s.syncClockHandler)
		api.POST("/poll", s.pollHandler)

		api.GET("/readings", s.readingsHandler)
		api.GET("/readings/latest", s.latestReadingHandler)
		api.GET("/stats/daily", s.dailyStatsHandler)
		api.GET("/writes", s.writesHandler)

		api.GET("/config/device", s.getDeviceConfigHandler)
		api.POST("/config/device/test", s.testDeviceConfigHandler)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	log.Printf("API server starting on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	st := s.collector.Status()

	status := "healthy"
	if !st.Available {
		status = "unavailable"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           status,
		"device_available": st.Available,
		"collecting":       st.Collecting,
		"last_poll":        st.LastPoll,
		"last_error":       st.LastError,
		"timestamp":        time.Now(),
	})
}

func (s *Server) statusHandler(c *gin.Context) {
	snap := s.collector.Latest()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No data available yet",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp": snap.At,
		"available": s.collector.Available(),
		"values":    snap.Values(),
	})
}

func (s *Server) entitiesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, heatpump.Entities(s.collector.Map()))
}

// FieldResponse describes one field and its current value.
type FieldResponse struct {
	Name     string      `json:"name"`
	Label    string      `json:"label"`
	Table    string      `json:"table"`
	Address  uint16      `json:"address"`
	Type     string      `json:"type"`
	Access   string      `json:"access"`
	Unit     string      `json:"unit,omitempty"`
	Min      *float64    `json:"min,omitempty"`
	Max      *float64    `json:"max,omitempty"`
	MaxFrom  string      `json:"max_from,omitempty"`
	Options  []string    `json:"options,omitempty"`
	Value    interface{} `json:"value"`
	HasValue bool        `json:"has_value"`
}

func newFieldResponse(f heatpump.RegisterField, snap *heatpump.Snapshot) FieldResponse {
	r := FieldResponse{
		Name:    f.Name,
		Label:   f.Label,
		Table:   f.Table.String(),
		Address: f.Address,
		Type:    f.Type.String(),
		Access:  f.Access.String(),
		Unit:    f.Unit,
		MaxFrom: f.MaxFrom,
	}
	if f.HasRange {
		min, max := f.Min, f.Max
		r.Min, r.Max = &min, &max
	}
	if f.Type == heatpump.Enum {
		r.Options = f.OptionLabels()
	}
	if v, ok := snap.Get(f.Name); ok {
		r.Value, r.HasValue = v, true
	}
	return r
}

func (s *Server) fieldsHandler(c *gin.Context) {
	snap := s.collector.Latest()
	fields := s.collector.Map().Fields()
	out := make([]FieldResponse, 0, len(fields))
	for _, f := range fields {
		out = append(out, newFieldResponse(f, snap))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) fieldHandler(c *gin.Context) {
	f, err := s.collector.Map().Lookup(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFieldResponse(f, s.collector.Latest()))
}

// WriteFieldRequest carries the new value as a JSON number, bool or string.
type WriteFieldRequest struct {
	Value interface{} `json:"value"`
}

func (s *Server) writeFieldHandler(c *gin.Context) {
	var req WriteFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text, err := valueText(req.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.collector.WriteText(c.Request.Context(), collector.SourceAPI, c.Param("name"), text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, writeResponse(res))
}

func (s *Server) syncClockHandler(c *gin.Context) {
	res, err := s.collector.SyncClock(c.Request.Context(), collector.SourceAPI)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, writeResponse(res))
}

func (s *Server) pollHandler(c *gin.Context) {
	res, err := s.collector.CollectOnce(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	decodeErrors := make([]string, 0, len(res.DecodeErrors))
	for _, e := range res.DecodeErrors {
		decodeErrors = append(decodeErrors, e.Error())
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp":     res.Snapshot.At,
		"updated":       res.Updated,
		"decode_errors": decodeErrors,
	})
}

func writeResponse(res heatpump.WriteResult) gin.H {
	return gin.H{
		"field":   res.Field,
		"address": res.Address,
		"words":   res.Words,
		"value":   res.Value,
	}
}

// valueText renders a JSON value as the text form the field parsers accept.
func valueText(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		if x {
			return "on", nil
		}
		return "off", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func (s *Server) readingsHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "History is disabled"})
		return
	}

	field := c.Query("field")
	if field == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'field' parameter"})
		return
	}
	if _, err := s.collector.Map().Lookup(field); err != nil {
		respondError(c, err)
		return
	}

	fromStr := c.Query("from")
	toStr := c.Query("to")
	limitStr := c.DefaultQuery("limit", "100")

	var limit int
	fmt.Sscanf(limitStr, "%d", &limit)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	if fromStr != "" && toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' date format"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' date format"})
			return
		}

		readings, err := s.db.GetReadingsByRange(field, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, readings)
		return
	}

	readings, err := s.db.GetReadingsWithLimit(field, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (s *Server) latestReadingHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "History is disabled"})
		return
	}
	reading, err := s.db.GetLatestReading(c.Query("field"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reading)
}

func (s *Server) dailyStatsHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "History is disabled"})
		return
	}

	dateStr := c.DefaultQuery("date", time.Now().Format("2006-01-02"))
	date, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format"})
		return
	}

	stats, err := s.db.GetDailyStats(c.DefaultQuery("field", "t1"), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) writesHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "History is disabled"})
		return
	}

	var limit int
	fmt.Sscanf(c.DefaultQuery("limit", "50"), "%d", &limit)
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	writes, err := s.db.GetWrites(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, writes)
}
