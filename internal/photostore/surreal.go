package photostore

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	sdblogger "github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
)

func init() {
	// WebSocket upgrade needs HTTP/1.1 semantics; HTTP/2 ALPN breaks it.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// SurrealConfig holds connection settings for the SurrealDB backend.
type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Surreal stores photo records in SurrealDB with vector and fulltext search.
// When no embedder is configured, search falls back to BM25 fulltext only.
type Surreal struct {
	conn     *rews.Connection[*gorillaws.Connection]
	db       *surrealdb.DB
	embedder *Embedder
}

// NewSurreal connects, authenticates and applies the photo schema.
func NewSurreal(ctx context.Context, cfg SurrealConfig, embedder *Embedder) (*Surreal, error) {
	sdkLogger := sdblogger.New(slog.Default().Handler())
	codec := surrealcbor.New()

	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")
	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect surrealdb: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}
	if _, err := db.SignIn(ctx, surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}

	s := &Surreal{conn: conn, db: db, embedder: embedder}
	if err := s.applySchema(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

// Close closes the SurrealDB connection.
func (s *Surreal) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

func (s *Surreal) applySchema(ctx context.Context) error {
	dimension := 0
	if s.embedder != nil {
		dimension = s.embedder.Dimension()
	}

	schema := `
		DEFINE TABLE IF NOT EXISTS photo SCHEMALESS;
		DEFINE FIELD IF NOT EXISTS photo_id ON photo TYPE string;
		DEFINE FIELD IF NOT EXISTS document ON photo TYPE string;
		DEFINE FIELD IF NOT EXISTS created ON photo TYPE string;
		DEFINE INDEX IF NOT EXISTS photo_photo_id ON photo FIELDS photo_id UNIQUE;
		DEFINE ANALYZER IF NOT EXISTS photo_analyzer TOKENIZERS class FILTERS lowercase, ascii;
		DEFINE INDEX IF NOT EXISTS photo_document_ft ON photo FIELDS document FULLTEXT ANALYZER photo_analyzer BM25;
	`
	if dimension > 0 {
		schema += fmt.Sprintf(`
		DEFINE FIELD IF NOT EXISTS embedding ON photo TYPE array<float>;
		DEFINE INDEX IF NOT EXISTS photo_embedding ON photo FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
	`, dimension)
	}

	if _, err := surrealdb.Query[any](ctx, s.db, schema, nil); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// photoRecord is the stored shape; it carries the metadata verbatim plus the
// search document and optional embedding.
type photoRecord struct {
	PhotoID   string               `json:"photo_id"`
	Photo     models.PhotoMetadata `json:"photo"`
	Document  string               `json:"document"`
	Embedding []float32            `json:"embedding,omitempty"`
	Created   string               `json:"created"`
}

const photoFields = "photo_id, photo, document, created"

func (s *Surreal) Store(ctx context.Context, photo models.PhotoMetadata, document string) error {
	record := photoRecord{
		PhotoID:  photo.ID,
		Photo:    photo,
		Document: document,
		Created:  photo.CreatedAt.UTC().Format(time.RFC3339),
	}
	if s.embedder != nil && document != "" {
		emb, err := s.embedder.Embed(ctx, document)
		if err != nil {
			return fmt.Errorf("embed document: %w", err)
		}
		record.Embedding = emb
	}

	_, err := surrealdb.Query[any](ctx, s.db, `
		UPSERT type::record("photo", $id) CONTENT $content
	`, map[string]any{"id": photo.ID, "content": record})
	if err != nil {
		return fmt.Errorf("store photo: %w", err)
	}
	return nil
}

func (s *Surreal) Get(ctx context.Context, id string) (models.PhotoMetadata, error) {
	results, err := surrealdb.Query[[]photoRecord](ctx, s.db, fmt.Sprintf(`
		SELECT %s FROM type::record("photo", $id)
	`, photoFields), map[string]any{"id": id})
	if err != nil {
		return models.PhotoMetadata{}, fmt.Errorf("get photo: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.PhotoMetadata{}, ErrPhotoNotFound
	}
	return (*results)[0].Result[0].Photo, nil
}

func (s *Surreal) List(ctx context.Context, limit, offset int) ([]models.PhotoMetadata, error) {
	results, err := surrealdb.Query[[]photoRecord](ctx, s.db, fmt.Sprintf(`
		SELECT %s FROM photo ORDER BY created DESC LIMIT $limit START $offset
	`, photoFields), map[string]any{"limit": limit, "offset": offset})
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	return recordsToPhotos(results), nil
}

func (s *Surreal) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	_, err := surrealdb.Query[any](ctx, s.db, `
		DELETE type::record("photo", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	return nil
}

func (s *Surreal) Search(ctx context.Context, query string, limit int) ([]models.PhotoMetadata, error) {
	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		results, err := surrealdb.Query[[]photoRecord](ctx, s.db, fmt.Sprintf(`
			SELECT %s FROM photo WHERE embedding <|%d,40|> $emb
		`, photoFields, limit), map[string]any{"emb": emb})
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		return recordsToPhotos(results), nil
	}

	results, err := surrealdb.Query[[]photoRecord](ctx, s.db, fmt.Sprintf(`
		SELECT %s FROM photo WHERE document @0@ $q LIMIT $limit
	`, photoFields), map[string]any{"q": query, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("fulltext search: %w", err)
	}
	return recordsToPhotos(results), nil
}

func recordsToPhotos(results *[]surrealdb.QueryResult[[]photoRecord]) []models.PhotoMetadata {
	if results == nil || len(*results) == 0 {
		return []models.PhotoMetadata{}
	}
	records := (*results)[0].Result
	out := make([]models.PhotoMetadata, 0, len(records))
	for _, r := range records {
		out = append(out, r.Photo)
	}
	return out
}
