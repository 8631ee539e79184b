package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/dgo/v230"
	"github.com/dgraph-io/dgo/v230/protos/api"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GraphAdapter is the optional association-graph persistence backend,
// adapted from the teacher's core/persistence/dgraph_client.go +
// core/memory/dgraph_hypergraph.go: a retry-dialed gRPC client writing
// node/edge mutations, repurposed here to durably mirror the Memory
// Store's symmetric association graph rather than a general hypergraph.
type GraphAdapter struct {
	conn       *grpc.ClientConn
	client     *dgo.Dgraph
	endpoint   string
	retryCount int
	retryDelay time.Duration
	log        *zap.Logger
}

// NewGraphAdapter dials endpoint, retrying retryCount times, and loads the
// association-node/edge schema.
func NewGraphAdapter(log *zap.Logger, endpoint string) (*GraphAdapter, error) {
	g := &GraphAdapter{endpoint: endpoint, retryCount: 3, retryDelay: 2 * time.Second, log: log}
	if err := g.connect(); err != nil {
		return nil, err
	}
	if err := g.loadSchema(context.Background()); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GraphAdapter) connect() error {
	var lastErr error
	for attempt := 0; attempt <= g.retryCount; attempt++ {
		conn, err := grpc.NewClient(g.endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err == nil {
			g.conn = conn
			g.client = dgo.NewDgraphClient(api.NewDgraphClient(conn))
			return nil
		}
		lastErr = err
		if attempt < g.retryCount {
			if g.log != nil {
				g.log.Warn("dgraph connect retrying", zap.Int("attempt", attempt), zap.Error(err))
			}
			time.Sleep(g.retryDelay)
		}
	}
	return PersistenceErrorf("graph: failed to connect to %s after %d attempts: %v", g.endpoint, g.retryCount+1, lastErr)
}

func (g *GraphAdapter) loadSchema(ctx context.Context) error {
	const schema = `
memory_id: string @index(exact) .
associated_id: string @index(exact) .
strength: float .
`
	op := &api.Operation{Schema: schema}
	if err := g.client.Alter(ctx, op); err != nil {
		return PersistenceErrorf("graph: load schema: %v", err)
	}
	return nil
}

// PutAssociation writes a symmetric association between two memory ids
// with the given strength, as one edge node in each direction, mirroring
// MemoryStore.create_association's durability requirement without owning
// the authoritative adjacency map (that stays in-process, per spec §9's
// arena+adjacency-map guidance). Repeated calls for the same pair add new
// edge nodes; they are not merged.
func (g *GraphAdapter) PutAssociation(ctx context.Context, id1, id2 string, strength float64) error {
	payload := []map[string]interface{}{
		{"memory_id": id1, "associated_id": id2, "strength": strength},
		{"memory_id": id2, "associated_id": id1, "strength": strength},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	txn := g.client.NewTxn()
	defer txn.Discard(ctx)
	mu := &api.Mutation{SetJson: data, CommitNow: true}
	if _, err := txn.Mutate(ctx, mu); err != nil {
		return PersistenceErrorf("graph: put association %s-%s: %v", id1, id2, err)
	}
	return nil
}

// GetAssociations returns every memory id associated with id, per the
// graph-backed mirror (used for cross-checking the in-memory adjacency map
// in offline audits, not on the retrieve hot path).
func (g *GraphAdapter) GetAssociations(ctx context.Context, id string) ([]string, error) {
	const q = `
query assoc($id: string) {
	edges(func: eq(memory_id, $id)) {
		associated_id
	}
}`
	resp, err := g.client.NewReadOnlyTxn().QueryWithVars(ctx, q, map[string]string{"$id": id})
	if err != nil {
		return nil, PersistenceErrorf("graph: get associations for %s: %v", id, err)
	}
	var decoded struct {
		Edges []struct {
			AssociatedID string `json:"associated_id"`
		} `json:"edges"`
	}
	if err := json.Unmarshal(resp.Json, &decoded); err != nil {
		return nil, PersistenceErrorf("graph: decode associations for %s: %v", id, err)
	}
	out := make([]string, 0, len(decoded.Edges))
	for _, e := range decoded.Edges {
		out = append(out, e.AssociatedID)
	}
	return out, nil
}

func (g *GraphAdapter) Close() error {
	if g.conn == nil {
		return nil
	}
	return g.conn.Close()
}
