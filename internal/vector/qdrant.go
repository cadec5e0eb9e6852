package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// payloadKey holds the caller's string id. Qdrant point ids must be integers or UUIDs.
const payloadKey = "_key"

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantStore implements VectorStore on a Qdrant collection over gRPC.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimensions int
	logger     *zap.Logger
}

// NewQdrantStore connects to Qdrant and ensures the collection exists with the given dimension.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, dimensions int, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	s := &QdrantStore{client: client, collection: cfg.Collection, dimensions: dimensions, logger: logger}
	if err := s.EnsureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// Type returns the store type identifier.
func (s *QdrantStore) Type() string {
	return string(TypeQdrant)
}

// EnsureCollection creates the collection if missing, or checks its vector size if present.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		s.logger.Info("creating collection", zap.String("collection", s.collection), zap.Int("vector_size", s.dimensions))
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}
	if info.Config == nil || info.Config.Params == nil {
		return fmt.Errorf("collection config is invalid")
	}
	params := info.Config.Params.GetVectorsConfig().GetParams()
	if params == nil {
		return fmt.Errorf("collection vector params are invalid")
	}
	if int(params.Size) != s.dimensions {
		return fmt.Errorf("collection vector size mismatch: expected %d, got %d", s.dimensions, params.Size)
	}
	return nil
}

// PointID maps a string id to the deterministic UUID used as the Qdrant point id.
func PointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

// UpsertIfAbsent writes vec unless a point for id already exists.
func (s *QdrantStore) UpsertIfAbsent(ctx context.Context, id string, vec []float32, meta map[string]any) (bool, error) {
	if len(vec) != s.dimensions {
		return false, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), s.dimensions)
	}
	pid := qdrant.NewID(PointID(id))
	existing, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{pid},
	})
	if err != nil {
		return false, fmt.Errorf("failed to look up point: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	payload, err := buildPayload(id, meta)
	if err != nil {
		return false, err
	}

	wait := true
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      pid,
			Vectors: qdrant.NewVectors(vec...),
			Payload: payload,
		}},
	})
	if err != nil {
		s.logger.Error("failed to upsert point", zap.String("collection", s.collection), zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to upsert point: %w", err)
	}
	return true, nil
}

// buildPayload stores meta next to the caller's id under payloadKey.
func buildPayload(id string, meta map[string]any) (map[string]*qdrant.Value, error) {
	payload := map[string]*qdrant.Value{payloadKey: qdrant.NewValueString(id)}
	for k, v := range meta {
		val, err := toValue(v)
		if err != nil {
			return nil, fmt.Errorf("payload %s: %w", k, err)
		}
		payload[k] = val
	}
	return payload, nil
}

func toValue(v any) (*qdrant.Value, error) {
	switch x := v.(type) {
	case nil:
		return qdrant.NewValueNull(), nil
	case string:
		return qdrant.NewValueString(x), nil
	case int:
		return qdrant.NewValueInt(int64(x)), nil
	case int64:
		return qdrant.NewValueInt(x), nil
	case float64:
		return qdrant.NewValueDouble(x), nil
	case float32:
		return qdrant.NewValueDouble(float64(x)), nil
	case bool:
		return qdrant.NewValueBool(x), nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
}

// DeleteByIDs removes the points for ids.
func (s *QdrantStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pids := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pids = append(pids, qdrant.NewID(PointID(id)))
	}
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pids...),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

// Query asks Qdrant for the k nearest points. Qdrant's cosine score is the similarity.
func (s *QdrantStore) Query(ctx context.Context, vec []float32, k int) ([]*Match, error) {
	if len(vec) != s.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vec), s.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	limit := uint64(k)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	return s.toMatches(points), nil
}

// toMatches converts scored points, skipping any whose payload lacks the caller's id.
func (s *QdrantStore) toMatches(points []*qdrant.ScoredPoint) []*Match {
	matches := make([]*Match, 0, len(points))
	for _, p := range points {
		meta := convertPayloadToMap(p.Payload)
		id, _ := meta[payloadKey].(string)
		delete(meta, payloadKey)
		if id == "" {
			s.logger.Warn("point without key in payload", zap.String("point", p.GetId().GetUuid()))
			continue
		}
		sim := float64(p.Score)
		matches = append(matches, &Match{ID: id, Similarity: sim, Score: ScoreFromSimilarity(sim), Meta: meta})
	}
	return matches
}

// Size returns the exact point count, or 0 if Qdrant cannot be reached.
func (s *QdrantStore) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: s.collection, Exact: &exact})
	if err != nil {
		s.logger.Warn("failed to count points", zap.Error(err))
		return 0
	}
	return int(n)
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
