package sim

import (
	"errors"
	"fmt"
	"sync"
)

// IdentifierRegistry hands out federated data identifiers. An identifier is
// held until its release func is called.
// Thread-safe: registration may happen from concurrent experiment setups.
type IdentifierRegistry struct {
	mu   sync.Mutex
	used map[string]bool
}

// NewIdentifierRegistry creates an empty registry.
func NewIdentifierRegistry() *IdentifierRegistry {
	return &IdentifierRegistry{used: make(map[string]bool)}
}

// Register claims id. The returned release func frees it and is idempotent.
func (r *IdentifierRegistry) Register(id string) (release func(), err error) {
	if id == "" {
		return nil, configErrorf("federated data identifier must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.used[id] {
		return nil, configErrorf("identifier %q is already in use", id)
	}
	r.used[id] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.used, id)
			r.mu.Unlock()
		})
	}, nil
}

// InUse reports whether id is currently registered.
func (r *IdentifierRegistry) InUse(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used[id]
}

// FederatedData is one logical dataset spread over several nodes. Each node
// stores its share as private data named after the identifier.
type FederatedData struct {
	id      string
	nodes   []*DataNode
	release func()
}

// NewFederatedData claims id in registry. Close gives it back.
func NewFederatedData(registry *IdentifierRegistry, id string) (*FederatedData, error) {
	if registry == nil {
		return nil, configErrorf("federated data %q needs an identifier registry", id)
	}
	release, err := registry.Register(id)
	if err != nil {
		return nil, err
	}
	return &FederatedData{id: id, release: release}, nil
}

// Identifier returns the name the shares are stored under.
func (f *FederatedData) Identifier() string { return f.id }

// AddDataNode stores data on node under the identifier and appends the node.
func (f *FederatedData) AddDataNode(node *DataNode, data Value) {
	node.SetPrivateData(f.id, data)
	f.nodes = append(f.nodes, node)
}

// NumNodes returns the number of nodes holding a share.
func (f *FederatedData) NumNodes() int { return len(f.nodes) }

// Node returns the i-th node.
func (f *FederatedData) Node(i int) *DataNode { return f.nodes[i] }

// Nodes returns the nodes in insertion order.
func (f *FederatedData) Nodes() []*DataNode {
	out := make([]*DataNode, len(f.nodes))
	copy(out, f.nodes)
	return out
}

// ConfigureDataAccess sets the same policy on every node.
func (f *FederatedData) ConfigureDataAccess(policy AccessPolicy) error {
	var errs []error
	for _, node := range f.nodes {
		if err := node.ConfigureDataAccess(f.id, policy); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", node.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Query asks every node once. answers[i] is the zero Value for nodes that
// failed; their errors are joined into err.
func (f *FederatedData) Query() (answers []Value, err error) {
	answers = make([]Value, len(f.nodes))
	var errs []error
	for i, node := range f.nodes {
		v, qerr := node.Query(f.id)
		if qerr != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", node.ID(), qerr))
			continue
		}
		answers[i] = v
	}
	return answers, errors.Join(errs...)
}

// ApplyFederatedTransformation runs t on the share of every node.
func (f *FederatedData) ApplyFederatedTransformation(t Transformation) error {
	all := make([]int, len(f.nodes))
	for i := range all {
		all[i] = i
	}
	return f.applyToNodes(all, t)
}

func (f *FederatedData) applyToNodes(indices []int, t Transformation) error {
	for _, i := range indices {
		if err := f.nodes[i].ApplyDataTransformation(f.id, t); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the identifier. Nodes keep their data.
func (f *FederatedData) Close() {
	if f.release != nil {
		f.release()
	}
}

// FederateArray splits data into numNodes contiguous shares of near-equal
// length and places each share on a fresh node built from node. Node i is
// named "<id>-<i>"; node.ID is ignored.
func FederateArray(registry *IdentifierRegistry, rng *PartitionedRNG, id string, data Value, numNodes int, node NodeConfig) (*FederatedData, error) {
	if numNodes < 1 || numNodes > data.Len() {
		return nil, configErrorf("cannot split %d values across %d nodes", data.Len(), numNodes)
	}
	fd, err := NewFederatedData(registry, id)
	if err != nil {
		return nil, err
	}
	n := data.Len()
	for i := 0; i < numNodes; i++ {
		cfg := node
		cfg.ID = fmt.Sprintf("%s-%d", id, i)
		dn, err := NewDataNode(cfg, rng)
		if err != nil {
			fd.Close()
			return nil, err
		}
		lo, hi := i*n/numNodes, (i+1)*n/numNodes
		fd.AddDataNode(dn, Vector(data.data[lo:hi]))
	}
	return fd, nil
}
