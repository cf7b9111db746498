package battle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/fadedpez/caseclash/internal/logging"
	"github.com/fadedpez/caseclash/pkg/entities"
)

// ElasticsearchConfig holds configuration options for the battle history index
type ElasticsearchConfig struct {
	URL             string
	Username        string
	Password        string
	IndexPrefix     string
	RetentionPeriod time.Duration // How long monthly indices are kept
	IndexTimeout    time.Duration // Upper bound on one background index call
}

// BattleDocument is the searchable summary of a battle that reached a terminal status
type BattleDocument struct {
	BattleID     string                `json:"battle_id"`
	Mode         entities.Mode         `json:"mode"`
	Status       entities.BattleStatus `json:"status"`
	EntryCost    int64                 `json:"entry_cost"`
	Pool         int64                 `json:"pool"`
	Rounds       int                   `json:"rounds"`
	BoxSequence  []string              `json:"box_sequence"`
	CancelReason string                `json:"cancel_reason,omitempty"`
	JackpotRoll  *float64              `json:"jackpot_roll,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	FinishedAt   time.Time             `json:"finished_at"`
	Participants []ParticipantDocument `json:"participants"`
}

// ParticipantDocument is one seat of a BattleDocument
type ParticipantDocument struct {
	ParticipantID string `json:"participant_id"`
	UserID        string `json:"user_id,omitempty"`
	IsBot         bool   `json:"is_bot"`
	Seat          int    `json:"seat"`
	Team          *int   `json:"team,omitempty"`
	Value         string `json:"value"`
	Payout        int64  `json:"payout"`
	Forfeited     bool   `json:"forfeited"`
}

const battleMapping = `{
	"mappings": {
		"properties": {
			"battle_id": { "type": "keyword" },
			"mode": { "type": "keyword" },
			"status": { "type": "keyword" },
			"entry_cost": { "type": "long" },
			"pool": { "type": "long" },
			"rounds": { "type": "integer" },
			"box_sequence": { "type": "keyword" },
			"cancel_reason": { "type": "text" },
			"jackpot_roll": { "type": "double" },
			"created_at": { "type": "date" },
			"finished_at": { "type": "date" },
			"participants": {
				"type": "nested",
				"properties": {
					"participant_id": { "type": "keyword" },
					"user_id": { "type": "keyword" },
					"is_bot": { "type": "boolean" },
					"seat": { "type": "integer" },
					"team": { "type": "integer" },
					"value": { "type": "scaled_float", "scaling_factor": 100 },
					"payout": { "type": "long" },
					"forfeited": { "type": "boolean" }
				}
			}
		}
	}
}`

// ElasticsearchRepository decorates a Repository, indexing battles into
// monthly indices once they reach a terminal status
type ElasticsearchRepository struct {
	baseRepo Repository
	client   *elasticsearch.Client
	config   *ElasticsearchConfig
	logger   *logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	created map[string]bool
	pending sync.WaitGroup
}

// NewElasticsearchRepository creates a new Elasticsearch-backed decorator
func NewElasticsearchRepository(baseRepo Repository, config *ElasticsearchConfig) (*ElasticsearchRepository, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{config.URL},
	}
	if config.Username != "" && config.Password != "" {
		cfg.Username = config.Username
		cfg.Password = config.Password
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	if config.IndexPrefix == "" {
		config.IndexPrefix = "caseclash"
	}
	if config.RetentionPeriod == 0 {
		config.RetentionPeriod = 90 * 24 * time.Hour
	}
	if config.IndexTimeout == 0 {
		config.IndexTimeout = 10 * time.Second
	}

	return &ElasticsearchRepository{
		baseRepo: baseRepo,
		client:   client,
		config:   config,
		logger:   logging.Default.WithField("component", "battle_history"),
		now:      time.Now,
		created:  make(map[string]bool),
	}, nil
}

// Save implements Repository. Terminal battles are indexed in the background
// so a slow cluster never holds up the caller; failures are logged and the
// base store remains the source of truth.
func (r *ElasticsearchRepository) Save(ctx context.Context, session *entities.BattleSession) error {
	if err := r.baseRepo.Save(ctx, session); err != nil {
		return err
	}
	if !session.Status.IsTerminal() {
		return nil
	}

	snapshot := session.Clone()
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		indexCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.IndexTimeout)
		defer cancel()
		if err := r.IndexBattle(indexCtx, snapshot); err != nil {
			r.logger.WithField("session_id", snapshot.ID).Warn("Failed to index battle: %v", err)
		}
	}()
	return nil
}

// Wait blocks until every background index call has finished
func (r *ElasticsearchRepository) Wait() {
	r.pending.Wait()
}

// Get implements Repository
func (r *ElasticsearchRepository) Get(ctx context.Context, id string) (*entities.BattleSession, error) {
	return r.baseRepo.Get(ctx, id)
}

// ListByStatus implements Repository
func (r *ElasticsearchRepository) ListByStatus(ctx context.Context, statuses ...entities.BattleStatus) ([]*entities.BattleSession, error) {
	return r.baseRepo.ListByStatus(ctx, statuses...)
}

// PruneFinishedBefore implements Repository. Indexed history is governed by
// PruneOldIndices instead.
func (r *ElasticsearchRepository) PruneFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.baseRepo.PruneFinishedBefore(ctx, cutoff)
}

// IndexBattle writes the battle summary, keyed by battle ID so replays overwrite
func (r *ElasticsearchRepository) IndexBattle(ctx context.Context, session *entities.BattleSession) error {
	doc := NewBattleDocument(session, r.now())
	index := r.indexFor(doc.FinishedAt)
	if err := r.ensureIndex(ctx, index); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("error marshaling battle document: %w", err)
	}

	res, err := r.client.Index(
		index,
		bytes.NewReader(data),
		r.client.Index.WithDocumentID(doc.BattleID),
		r.client.Index.WithContext(ctx),
		r.client.Index.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("error indexing battle: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing battle: %s", res.String())
	}
	return nil
}

// UserHistory returns the most recent indexed battles a user took part in
func (r *ElasticsearchRepository) UserHistory(ctx context.Context, userID string, limit int) ([]*BattleDocument, error) {
	if limit <= 0 {
		limit = 20
	}
	query := map[string]interface{}{
		"size": limit,
		"sort": []interface{}{
			map[string]interface{}{"finished_at": map[string]string{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"nested": map[string]interface{}{
				"path": "participants",
				"query": map[string]interface{}{
					"term": map[string]string{"participants.user_id": userID},
				},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("error encoding query: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.config.IndexPrefix+"_battles_*"),
		r.client.Search.WithBody(bytes.NewReader(body)),
		r.client.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, fmt.Errorf("error searching battles: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching battles: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source BattleDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error parsing search response: %w", err)
	}

	docs := make([]*BattleDocument, 0, len(result.Hits.Hits))
	for i := range result.Hits.Hits {
		docs = append(docs, &result.Hits.Hits[i].Source)
	}
	return docs, nil
}

// GetIndices lists the battle history indices
func (r *ElasticsearchRepository) GetIndices(ctx context.Context) ([]string, error) {
	res, err := r.client.Indices.Get(
		[]string{r.config.IndexPrefix + "_battles_*"},
		r.client.Indices.Get.WithContext(ctx),
		r.client.Indices.Get.WithExpandWildcards("open"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get indices: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error getting indices: %s", res.String())
	}

	var indices map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&indices); err != nil {
		return nil, fmt.Errorf("error parsing indices response: %w", err)
	}

	names := make([]string, 0, len(indices))
	for name := range indices {
		names = append(names, name)
	}
	return names, nil
}

// PruneOldIndices deletes monthly indices whose month ended before the retention window
func (r *ElasticsearchRepository) PruneOldIndices(ctx context.Context) ([]string, error) {
	names, err := r.GetIndices(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := r.now().Add(-r.config.RetentionPeriod)
	prefix := r.config.IndexPrefix + "_battles_"

	var deleted []string
	for _, name := range names {
		month, err := time.Parse("2006-01", strings.TrimPrefix(name, prefix))
		if err != nil {
			r.logger.Debug("Skipping index %s: %v", name, err)
			continue
		}
		if !month.AddDate(0, 1, 0).Before(cutoff) {
			continue
		}

		res, err := r.client.Indices.Delete([]string{name}, r.client.Indices.Delete.WithContext(ctx))
		if err != nil {
			r.logger.Error("Error deleting index %s: %v", name, err)
			continue
		}
		res.Body.Close()
		if res.IsError() {
			r.logger.Error("Error deleting index %s: %s", name, res.String())
			continue
		}

		r.mu.Lock()
		delete(r.created, name)
		r.mu.Unlock()

		r.logger.Info("Deleted battle index %s (older than retention period of %v)", name, r.config.RetentionPeriod)
		deleted = append(deleted, name)
	}
	return deleted, nil
}

func (r *ElasticsearchRepository) indexFor(t time.Time) string {
	return fmt.Sprintf("%s_battles_%s", r.config.IndexPrefix, t.UTC().Format("2006-01"))
}

// ensureIndex creates the monthly index with its mapping on first use
func (r *ElasticsearchRepository) ensureIndex(ctx context.Context, index string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.created[index] {
		return nil
	}

	res, err := r.client.Indices.Exists([]string{index}, r.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error checking if index exists: %w", err)
	}
	res.Body.Close()

	if res.StatusCode != 404 {
		if res.IsError() {
			return fmt.Errorf("error checking if index exists: %s", res.Status())
		}
		r.created[index] = true
		return nil
	}

	createRes, err := r.client.Indices.Create(
		index,
		r.client.Indices.Create.WithBody(strings.NewReader(battleMapping)),
		r.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("error creating index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() && !strings.Contains(createRes.String(), "resource_already_exists_exception") {
		return fmt.Errorf("error creating index: %s", createRes.String())
	}
	r.logger.Info("Created battle index %s", index)

	r.created[index] = true
	return nil
}

// NewBattleDocument summarizes a session for indexing
func NewBattleDocument(session *entities.BattleSession, now time.Time) *BattleDocument {
	finished := now.UTC()
	if session.FinishedAt != nil {
		finished = session.FinishedAt.UTC()
	}

	doc := &BattleDocument{
		BattleID:     session.ID,
		Mode:         session.Mode,
		Status:       session.Status,
		EntryCost:    session.EntryCost,
		Pool:         session.Pool(),
		Rounds:       session.TotalRounds(),
		BoxSequence:  append([]string(nil), session.BoxSequence...),
		CancelReason: session.CancelReason,
		JackpotRoll:  session.JackpotRoll,
		CreatedAt:    session.CreatedAt.UTC(),
		FinishedAt:   finished,
		Participants: make([]ParticipantDocument, 0, len(session.Participants)),
	}
	for _, p := range session.Participants {
		doc.Participants = append(doc.Participants, ParticipantDocument{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			IsBot:         p.IsBot,
			Seat:          p.Seat,
			Team:          p.Team,
			Value:         p.AccumulatedValue.StringFixed(2),
			Payout:        session.Payouts[p.ID],
			Forfeited:     p.Forfeited,
		})
	}
	return doc
}
