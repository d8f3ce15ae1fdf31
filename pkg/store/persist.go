package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/callpilot/callpilot/pkg/models"
)

// Sink is the persistence medium behind the store. Writes happen inside the
// store's mutation lock, so implementations need no locking of their own.
type Sink interface {
	WriteCampaigns(map[string]*models.Campaign) error
	WriteTokens(map[string]*models.OAuthToken) error
	ReadCampaigns() (map[string]*models.Campaign, error)
	ReadTokens() (map[string]*models.OAuthToken, error)
}

const (
	campaignsFile = "campaigns.json"
	tokensFile    = "oauth_tokens.json"
)

// FileSink persists both tables as JSON documents under a directory.
// Each write goes to a temp file first and is renamed into place.
type FileSink struct {
	dir string
}

// NewFileSink creates the directory if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (f *FileSink) WriteCampaigns(campaigns map[string]*models.Campaign) error {
	return writeJSON(filepath.Join(f.dir, campaignsFile), campaigns)
}

func (f *FileSink) WriteTokens(tokens map[string]*models.OAuthToken) error {
	return writeJSON(filepath.Join(f.dir, tokensFile), tokens)
}

func (f *FileSink) ReadCampaigns() (map[string]*models.Campaign, error) {
	out := make(map[string]*models.Campaign)
	if err := readJSON(filepath.Join(f.dir, campaignsFile), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *FileSink) ReadTokens() (map[string]*models.OAuthToken, error) {
	out := make(map[string]*models.OAuthToken)
	if err := readJSON(filepath.Join(f.dir, tokensFile), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// memorySink keeps writes in memory. Used by NewMemory for tests and for
// ephemeral deployments that opt out of persistence.
type memorySink struct {
	campaigns map[string]*models.Campaign
	tokens    map[string]*models.OAuthToken
}

func (m *memorySink) WriteCampaigns(c map[string]*models.Campaign) error {
	m.campaigns = make(map[string]*models.Campaign, len(c))
	for id, campaign := range c {
		m.campaigns[id] = campaign.Clone()
	}
	return nil
}

func (m *memorySink) WriteTokens(t map[string]*models.OAuthToken) error {
	m.tokens = make(map[string]*models.OAuthToken, len(t))
	for id, tok := range t {
		m.tokens[id] = tok.Clone()
	}
	return nil
}

func (m *memorySink) ReadCampaigns() (map[string]*models.Campaign, error) {
	return m.campaigns, nil
}

func (m *memorySink) ReadTokens() (map[string]*models.OAuthToken, error) {
	return m.tokens, nil
}
