package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/require"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/delivery"
	"github.com/edgard/assistbot/internal/delivery/deliverytest"
	"github.com/edgard/assistbot/internal/docs"
	"github.com/edgard/assistbot/internal/logger"
	"github.com/edgard/assistbot/internal/markup"
	"github.com/edgard/assistbot/internal/result"
	"github.com/edgard/assistbot/internal/scratch"
	"github.com/edgard/assistbot/internal/weather"
)

const (
	testToken = "123:TOKEN"
	adminID   = int64(1)
	userID    = int64(7)
	chatID    = int64(100)
)

var errStorage = errors.New("disk I/O error")

// memStore is an in-memory database.Store.
type memStore struct {
	mu       sync.Mutex
	err      error
	mood     string
	profiles map[int64]*database.Profile
	turns    map[int64][]database.Turn
}

func newMemStore(defaultMood string) *memStore {
	return &memStore{
		mood:     defaultMood,
		profiles: map[int64]*database.Profile{},
		turns:    map[int64][]database.Turn{},
	}
}

func (s *memStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *memStore) profile(userID int64) *database.Profile {
	p, ok := s.profiles[userID]
	if !ok {
		p = &database.Profile{UserID: userID, Mood: s.mood}
		s.profiles[userID] = p
	}
	return p
}

func (s *memStore) GetOrCreateProfile(_ context.Context, userID int64) (*database.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	p := *s.profile(userID)
	return &p, nil
}

func (s *memStore) SetMood(_ context.Context, userID int64, mood string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.profile(userID).Mood = mood
	return nil
}

func (s *memStore) ToggleSpeak(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	p := s.profile(userID)
	p.SpeakEnabled = !p.SpeakEnabled
	return p.SpeakEnabled, nil
}

func (s *memStore) SpeakEnabled(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	p, ok := s.profiles[userID]
	return ok && p.SpeakEnabled, nil
}

func (s *memStore) AppendTurn(_ context.Context, userID int64, role database.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.turns[userID] = append(s.turns[userID], database.Turn{UserID: userID, Role: role, Content: content})
	return nil
}

func (s *memStore) GetHistory(_ context.Context, userID int64) ([]database.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]database.Turn(nil), s.turns[userID]...), nil
}

func (s *memStore) CountStats(context.Context) (database.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return database.Stats{}, s.err
	}
	n := 0
	for _, t := range s.turns {
		n += len(t)
	}
	return database.Stats{Users: len(s.profiles), Turns: n}, nil
}

func (s *memStore) RunSQLMaintenance(context.Context) error { return nil }

func (s *memStore) history(userID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, t := range s.turns[userID] {
		out = append(out, string(t.Role)+": "+t.Content)
	}
	return out
}

func (s *memStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// fakeGemini records calls and returns canned results.
type fakeGemini struct {
	mu         sync.Mutex
	reply      result.Result[string]
	image      result.Result[string]
	document   result.Result[string]
	transcript result.Result[string]

	prompts   []string
	moods     []string
	histories [][]database.Turn
	images    [][]byte
	documents []string
}

func (g *fakeGemini) GenerateReply(_ context.Context, history []database.Turn, mood, prompt string) result.Result[string] {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.moods = append(g.moods, mood)
	g.histories = append(g.histories, history)
	return g.reply
}

func (g *fakeGemini) AnalyzeImage(_ context.Context, _ string, data []byte) result.Result[string] {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.images = append(g.images, data)
	return g.image
}

func (g *fakeGemini) AnalyzeDocument(_ context.Context, filename, _ string, _ bool) result.Result[string] {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.documents = append(g.documents, filename)
	return g.document
}

func (g *fakeGemini) Translate(context.Context, string, string) result.Result[string] {
	return result.Failed[string](errors.New("not used"))
}

func (g *fakeGemini) Transcribe(context.Context, string, []byte) result.Result[string] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transcript
}

func (g *fakeGemini) promptCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type fakeWeather struct {
	mu     sync.Mutex
	res    result.Result[weather.Report]
	cities []string
}

func (w *fakeWeather) Lookup(_ context.Context, city string) result.Result[weather.Report] {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cities = append(w.cities, city)
	return w.res
}

type fakeOCR struct {
	res result.Result[string]
}

func (o fakeOCR) Extract(context.Context, string) result.Result[string] { return o.res }

type fakeTranslator struct {
	mu    sync.Mutex
	res   result.Result[string]
	calls [][2]string
}

func (f *fakeTranslator) Translate(_ context.Context, text, lang string) result.Result[string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{text, lang})
	return f.res
}

// fileSynth writes the spoken text into a scratch file.
type fileSynth struct {
	dir *scratch.Dir
}

func (s fileSynth) Synthesize(_ context.Context, text string) result.Result[string] {
	f, err := s.dir.Write("tts", ".mp3", strings.NewReader("ID3:"+text))
	if err != nil {
		return result.Failed[string](err)
	}
	return result.Success(f.Path())
}

type fakeScheduler struct{}

func (fakeScheduler) Running() bool { return true }
func (fakeScheduler) JobCount() int { return 2 }

// harness wires real delivery, docs and download code to fakes.
type harness struct {
	deps       HandlerDeps
	store      *memStore
	ai         *fakeGemini
	weather    *fakeWeather
	translator *fakeTranslator
	tr         *deliverytest.Transport
	root       string

	filesMu sync.Mutex
	files   map[string]string
	hits    atomic.Int32
}

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telegram:\n  token: \""+testToken+"\"\ngemini:\n  api_key: \"key\"\n"), 0o600))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	cfg.Telegram.AdminUserIDs = []int64{adminID}
	cfg.Telegram.SegmentDelay = 0
	cfg.Documents.MaxFileSize = 2 * 1024 * 1024
	return cfg
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := loadTestConfig(t)
	log := logger.Discard()

	h := &harness{
		store:      newMemStore(cfg.Moods.Default),
		ai:         &fakeGemini{reply: result.Success("Ответ")},
		weather:    &fakeWeather{},
		translator: &fakeTranslator{},
		tr:         &deliverytest.Transport{},
		root:       t.TempDir(),
		files:      map[string]string{},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.hits.Add(1)
		id := strings.TrimPrefix(r.URL.Path, "/file/bot"+testToken+"/")
		h.filesMu.Lock()
		body, ok := h.files[id]
		h.filesMu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	dir, err := scratch.New(h.root, log)
	require.NoError(t, err)

	fetcher := NewFileFetcher(testToken, dir, cfg.Documents.MaxFileSize, log)
	fetcher.baseURL = srv.URL

	h.deps = HandlerDeps{
		Logger:     log,
		Config:     cfg,
		Store:      h.store,
		Gemini:     h.ai,
		Weather:    h.weather,
		Translator: h.translator,
		OCR:        fakeOCR{res: result.Empty[string]()},
		Docs:       docs.New(cfg.Documents, log),
		Files:      fetcher,
		Delivery: delivery.NewEngine(h.store, fileSynth{dir: dir}, delivery.Options{
			MaxMessageLength:   cfg.Telegram.MaxMessageLength,
			FailureNotice:      cfg.Messages.DeliveryFailed,
			SpeechFailedNotice: cfg.Messages.SpeechFailed,
		}, log),
		Dialect:   markup.HTML{},
		Scheduler: fakeScheduler{},
		Started:   time.Now().Add(-time.Hour),
	}
	return h
}

func (h *harness) serve(id, content string) {
	h.filesMu.Lock()
	defer h.filesMu.Unlock()
	h.files[id] = content
}

// leftovers lists files still in the scratch directory.
func (h *harness) leftovers(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.root)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (h *harness) conv() *conversation { return newConversation(h.deps) }

func textUpdate(from int64, text string) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   55,
			From: &models.User{ID: from},
			Chat: models.Chat{ID: chatID},
			Text: text,
		},
	}
}

func testTarget() delivery.Target {
	return delivery.Target{ChatID: chatID, UserID: userID, ReplyTo: 55}
}

// lastEdit returns the text of the most recent edit.
func lastEdit(t *testing.T, tr *deliverytest.Transport) string {
	t.Helper()
	require.NotEmpty(t, tr.Edits)
	return tr.Edits[len(tr.Edits)-1].Text
}
