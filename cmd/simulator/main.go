package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/api"
	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/config"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/submission"
)

// Depots for realistic report locations
var depots = []struct {
	Name string
	Lat  float64
	Lng  float64
}{
	{"London Central", 51.5074, -0.1278},
	{"Madrid Norte", 40.4168, -3.7038},
	{"Nicosia Depot", 35.1856, 33.3823},
	{"Bogotá Sur", 4.7110, -74.0721},
	{"Paris Est", 48.8566, 2.3522},
	{"Istanbul Garage", 41.0082, 28.9784},
	{"Cardiff Bay", 51.4816, -3.1791},
	{"Kuala Lumpur Hub", 3.1390, 101.6869},
}

var descriptions = map[models.ReportType][]string{
	models.ReportProblem: {
		"Engine warning light on since morning shift",
		"Rear door sticks when closing",
		"Air conditioning blowing warm air",
		"Brakes squeal at low speed",
	},
	models.ReportRepair: {
		"Oil change due at next service interval",
		"Replace worn front brake pads",
		"Wiper blades need replacing",
	},
	models.ReportAccident: {
		"Side mirror clipped by passing truck, glass cracked",
		"Low speed collision with bollard at depot exit, bumper dented",
	},
}

var severities = []models.Severity{
	models.SeverityLow,
	models.SeverityMedium,
	models.SeverityHigh,
	models.SeverityCritical,
}

// simConfig is read from the environment.
type simConfig struct {
	APIBaseURL string
	AuthToken  string
	Reports    int
	MaxPhotos  int
	Interval   time.Duration
}

func loadSimConfig() (simConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to load .env")
	}
	cfg := simConfig{
		APIBaseURL: config.NormalizeBaseURL(os.Getenv("API_BASE_URL")),
		Reports:    10,
		MaxPhotos:  3,
		Interval:   2 * time.Second,
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8081/api"
	}

	// SIM_AUTH_TOKEN may be a raw token or a full "Bearer <token>" header.
	cfg.AuthToken = os.Getenv("SIM_AUTH_TOKEN")
	if token, err := auth.ExtractTokenFromHeader(cfg.AuthToken); err == nil {
		cfg.AuthToken = token
	}
	if cfg.AuthToken == "" {
		return cfg, fmt.Errorf("SIM_AUTH_TOKEN is required")
	}

	if val := os.Getenv("FLEET_REPORTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			cfg.Reports = n
		}
	}
	if val := os.Getenv("SIM_PHOTOS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 1 {
			cfg.MaxPhotos = n
		}
	}
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.Interval = time.Duration(n) * time.Second
		}
	}
	return cfg, nil
}

func jitterLocation(rng *rand.Rand, lat, lng, meters float64) (float64, float64) {
	latMetersPerDeg := 111320.0
	lngMetersPerDeg := 111320.0 * math.Cos(lat*math.Pi/180)
	dLat := (rng.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLng := (rng.Float64()*2 - 1) * (meters / lngMetersPerDeg)
	return lat + dLat, lng + dLng
}

func randomLocation(rng *rand.Rand) models.Location {
	d := depots[rng.Intn(len(depots))]
	lat, lng := jitterLocation(rng, d.Lat, d.Lng, 500)
	return models.NewCoordinate(d.Name, lat, lng)
}

// photoStore serves generated photos to the orchestrator by path.
type photoStore struct {
	mu     sync.Mutex
	photos map[string][]byte
}

func newPhotoStore() *photoStore {
	return &photoStore{photos: make(map[string][]byte)}
}

func (s *photoStore) put(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos[path] = data
}

func (s *photoStore) ReadFile(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.photos[path]
	if !ok {
		return nil, fmt.Errorf("photo %s: %w", path, os.ErrNotExist)
	}
	return data, nil
}

func (s *photoStore) drop(photos []submission.Photo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range photos {
		delete(s.photos, p.Path)
	}
}

// generatePhoto renders a small gradient JPEG.
func generatePhoto(rng *rand.Rand, width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := color.RGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: base.R + uint8(x),
				G: base.G + uint8(y),
				B: base.B,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func randomDraft(rng *rand.Rand, store *photoStore, buses []string, maxPhotos int, seq int) (submission.Draft, error) {
	types := []models.ReportType{models.ReportProblem, models.ReportRepair, models.ReportAccident}
	rt := types[rng.Intn(len(types))]
	texts := descriptions[rt]

	draft := submission.Draft{
		Type:        rt,
		Vehicle:     buses[rng.Intn(len(buses))],
		Description: texts[rng.Intn(len(texts))],
		Severity:    severities[rng.Intn(len(severities))],
		Location:    randomLocation(rng),
	}
	n := 1 + rng.Intn(maxPhotos)
	for i := 0; i < n; i++ {
		data, err := generatePhoto(rng, 64, 48)
		if err != nil {
			return draft, fmt.Errorf("failed to generate photo: %w", err)
		}
		path := fmt.Sprintf("sim/report-%d-photo-%d.jpg", seq, i+1)
		store.put(path, data)
		draft.Photos = append(draft.Photos, submission.Photo{
			Path:      path,
			MimeType:  "image/jpeg",
			SizeBytes: int64(len(data)),
		})
	}
	return draft, nil
}

func fleetBuses(ctx context.Context, client *api.Client) []string {
	buses, err := client.Buses(ctx)
	if err == nil && len(buses) > 0 {
		ids := make([]string, 0, len(buses))
		for _, b := range buses {
			if b.Status == "" || b.Status == "active" {
				ids = append(ids, b.ID)
			}
		}
		if len(ids) > 0 {
			return ids
		}
	}
	if err != nil {
		log.WithError(err).Warn("Failed to list buses, using generated codes")
	}
	ids := make([]string, 0, 10)
	for i := 1; i <= 10; i++ {
		ids = append(ids, fmt.Sprintf("BUS%03d", 100+i))
	}
	return ids
}

// simulator files randomized reports one per tick.
type simulator struct {
	client *api.Client
	orch   *submission.Orchestrator
	store  *photoStore
	rng    *rand.Rand
	cfg    simConfig
}

func newSimulator(cfg simConfig, rng *rand.Rand) *simulator {
	tokens := middleware.TokenSourceFunc(func(middleware.TokenKind) string { return cfg.AuthToken })
	httpClient := api.NewAuthorizedHTTPClient(tokens, func(*http.Request) {
		log.Error("Backend rejected SIM_AUTH_TOKEN")
	}, 10*time.Second)
	client := api.NewClient(cfg.APIBaseURL, api.WithHTTPClient(httpClient))
	store := newPhotoStore()
	return &simulator{
		client: client,
		orch:   submission.NewOrchestrator(client, nil, submission.WithReadFile(store.ReadFile)),
		store:  store,
		rng:    rng,
		cfg:    cfg,
	}
}

// fileReport submits one random report and retries a failed upload once.
func (s *simulator) fileReport(ctx context.Context, buses []string, seq int) (int64, error) {
	draft, err := randomDraft(s.rng, s.store, buses, s.cfg.MaxPhotos, seq)
	if err != nil {
		return 0, err
	}
	defer s.store.drop(draft.Photos)

	id, err := s.orch.Submit(ctx, draft)
	var uerr *submission.UploadError
	if errors.As(err, &uerr) {
		log.WithFields(log.Fields{"report_id": id, "photo": uerr.Index}).Warn("Upload failed, retrying")
		_, err = s.orch.Retry(ctx, uerr.SubmissionID)
	}
	if err != nil {
		return id, err
	}
	log.WithFields(log.Fields{
		"report_id": id,
		"vehicle":   draft.Vehicle,
		"type":      draft.Type,
		"severity":  draft.Severity,
		"photos":    len(draft.Photos),
	}).Info("Filed report")
	return id, nil
}

func (s *simulator) run(ctx context.Context) int {
	buses := fleetBuses(ctx, s.client)
	filed := 0
	tick := time.NewTicker(s.cfg.Interval)
	defer tick.Stop()
	for seq := 1; seq <= s.cfg.Reports; seq++ {
		if _, err := s.fileReport(ctx, buses, seq); err != nil {
			log.WithError(err).Error("Failed to file report")
		} else {
			filed++
		}
		if seq == s.cfg.Reports {
			break
		}
		select {
		case <-ctx.Done():
			return filed
		case <-tick.C:
		}
	}
	return filed
}

func main() {
	cfg, err := loadSimConfig()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	log.WithFields(log.Fields{
		"reports":  cfg.Reports,
		"api_url":  cfg.APIBaseURL,
		"interval": cfg.Interval,
	}).Info("Starting report simulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := newSimulator(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))
	filed := sim.run(ctx)
	log.WithField("filed", filed).Info("Report simulation finished")
}
