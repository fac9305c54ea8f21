package fold

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/tokenfold/tokenfold/internal/message"
)

const (
	// summaryMessageHeader prefixes the system message injected by
	// SummaryMessage.
	summaryMessageHeader = "[Previous conversation summary]"

	// condensedHeading replaces accumulated update history when the merged
	// summary outgrows its budget.
	condensedHeading = "[Conversation History Summary]"

	// condenseFactor: merged content above condenseFactor x MaxSummaryTokens
	// collapses to the newest summary only, bounding growth over many
	// trimming events.
	condenseFactor = 2

	// archiveKeep bounds how many update batches the store retains in
	// compressed form.
	archiveKeep = 8
)

// ErrVersionNotArchived is returned by ExpandVersion for versions that were
// never archived or have aged out.
var ErrVersionNotArchived = errors.New("summary version not in archive")

// ConversationSummary is the accumulated summary state for one
// conversation. Version increments by exactly one per update; MessageCount
// and timestamps are exact running totals, not estimates.
type ConversationSummary struct {
	ID           string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Content      string
	Tokens       int
	MessageCount int
	Version      int
}

// archivedBatch is one update's dropped messages as zstd-compressed JSON.
type archivedBatch struct {
	version int
	data    []byte
}

// Shared zstd codecs; both are stateless in EncodeAll/DecodeAll mode and
// safe for concurrent use.
var (
	archiveEncoder, _ = zstd.NewWriter(nil)
	archiveDecoder, _ = zstd.NewReader(nil)
)

// SummaryStore accumulates summaries across trimming events for one
// conversation. A store instance is owned by a single conversation and is
// not safe for concurrent use; callers serialize prompt building per
// conversation and give each conversation its own store.
type SummaryStore struct {
	summary *ConversationSummary
	archive []archivedBatch
}

// NewSummaryStore creates an empty store.
func NewSummaryStore() *SummaryStore { return &SummaryStore{} }

// UpdateSummary folds dropped messages into the stored summary using s.
// Later updates merge under an "[Update N]" heading; when the merged
// content outgrows twice the summary budget it collapses to the newest
// summary alone. Returns a copy of the updated state.
func (st *SummaryStore) UpdateSummary(ctx context.Context, dropped []message.Message, s Summarizer, opts SummarizeOptions) (ConversationSummary, error) {
	if s == nil {
		return ConversationSummary{}, fmt.Errorf("updating summary: no summarizer configured")
	}
	opts = opts.normalize()

	res, err := s.Summarize(ctx, dropped, opts)
	if err != nil {
		return ConversationSummary{}, fmt.Errorf("summarizing %d dropped messages: %w", len(dropped), err)
	}

	now := time.Now()
	if st.summary == nil {
		st.summary = &ConversationSummary{
			ID:        uuid.NewString(),
			CreatedAt: now,
		}
	}
	st.summary.Version++
	st.summary.UpdatedAt = now
	st.summary.MessageCount += len(dropped)

	est := opts.estimator()
	if st.summary.Content == "" {
		st.summary.Content = res.Text
	} else {
		merged := fmt.Sprintf("%s\n\n[Update %d]\n%s", st.summary.Content, st.summary.Version, res.Text)
		if est.CountText(merged) > condenseFactor*opts.MaxSummaryTokens {
			merged = condensedHeading + "\n" + res.Text
		}
		st.summary.Content = merged
	}
	st.summary.Tokens = est.CountText(st.summary.Content)

	st.archiveBatch(st.summary.Version, dropped)

	return *st.summary, nil
}

// Summary returns a copy of the current state, ok=false before the first
// update.
func (st *SummaryStore) Summary() (ConversationSummary, bool) {
	if st.summary == nil {
		return ConversationSummary{}, false
	}
	return *st.summary, true
}

// SummaryMessage returns a system-role message carrying the stored summary,
// for injection at the front of an outgoing sequence. ok is false when
// nothing has been summarized yet.
func (st *SummaryStore) SummaryMessage() (message.Message, bool) {
	if st.summary == nil || st.summary.Content == "" {
		return message.Message{}, false
	}
	return message.Message{
		Role:    message.RoleSystem,
		Content: summaryMessageHeader + "\n\n" + st.summary.Content,
	}, true
}

// Clear drops the summary and its archive at a session boundary.
func (st *SummaryStore) Clear() {
	st.summary = nil
	st.archive = nil
}

// archiveBatch compresses and retains one update's dropped messages so a
// summary can later be expanded back to its sources. Archiving is best
// effort; failures never block the update.
func (st *SummaryStore) archiveBatch(version int, dropped []message.Message) {
	if len(dropped) == 0 {
		return
	}
	raw, err := json.Marshal(dropped)
	if err != nil {
		slog.Warn("Could not archive dropped messages", "version", version, "err", err)
		return
	}
	st.archive = append(st.archive, archivedBatch{
		version: version,
		data:    archiveEncoder.EncodeAll(raw, nil),
	})
	if len(st.archive) > archiveKeep {
		st.archive = st.archive[len(st.archive)-archiveKeep:]
	}
}

// ExpandVersion returns the original messages folded into the summary at
// version v. Only the most recent archiveKeep versions are retained.
func (st *SummaryStore) ExpandVersion(v int) ([]message.Message, error) {
	for _, batch := range st.archive {
		if batch.version != v {
			continue
		}
		raw, err := archiveDecoder.DecodeAll(batch.data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing archived version %d: %w", v, err)
		}
		var msgs []message.Message
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return nil, fmt.Errorf("decoding archived version %d: %w", v, err)
		}
		return msgs, nil
	}
	return nil, ErrVersionNotArchived
}
