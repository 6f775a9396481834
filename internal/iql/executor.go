package iql

import (
	"regexp"
	"strings"

	"infragraph/internal/logger"
	"infragraph/internal/metrics"
	"infragraph/internal/storage"
	"infragraph/pkg/models"
)

// DefaultMaxRegexLength caps MATCHES patterns. Oversized or invalid patterns
// degrade to "matches nothing" instead of raising, since query text may come
// from untrusted sources.
const DefaultMaxRegexLength = 200

// ExecutorOptions tunes executor limits.
type ExecutorOptions struct {
	MaxRegexLength int
	TraversalDepth int // depth used for downstream/upstream targets
}

// Executor runs parsed queries against a storage contract. It knows nothing
// about access control; wrapping the store is the caller's concern.
type Executor struct {
	store          storage.Store
	maxRegexLength int
	traversalDepth int
}

// NewExecutor creates an executor over the given store.
func NewExecutor(store storage.Store, opts ExecutorOptions) *Executor {
	if opts.MaxRegexLength <= 0 {
		opts.MaxRegexLength = DefaultMaxRegexLength
	}
	if opts.TraversalDepth <= 0 {
		opts.TraversalDepth = 5
	}
	return &Executor{
		store:          store,
		maxRegexLength: opts.MaxRegexLength,
		traversalDepth: opts.TraversalDepth,
	}
}

// Bucket is one group of a SUMMARIZE result.
type Bucket struct {
	Key   string  `json:"key"`
	Count int     `json:"count"`
	Cost  float64 `json:"cost,omitempty"`
}

// Result is the outcome of one executed statement: node/edge lists for FIND,
// grouped aggregates for SUMMARIZE.
type Result struct {
	Kind    QueryKind      `json:"kind"`
	Nodes   []*models.Node `json:"nodes,omitempty"`
	Edges   []*models.Edge `json:"edges,omitempty"`
	Buckets []Bucket       `json:"buckets,omitempty"`
}

// Execute parses and runs one IQL statement.
func (e *Executor) Execute(input string) (*Result, error) {
	q, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return e.Run(q)
}

// Run executes an already-parsed query.
func (e *Executor) Run(q *Query) (*Result, error) {
	switch q.Kind {
	case KindSummarize:
		metrics.IncQuery("summarize")
		return e.runSummarize(q)
	default:
		metrics.IncQuery("find")
		return e.runFind(q)
	}
}

func (e *Executor) runFind(q *Query) (*Result, error) {
	switch q.Target {
	case TargetDownstream, TargetUpstream:
		direction := models.DirectionDownstream
		if q.Target == TargetUpstream {
			direction = models.DirectionUpstream
		}
		sub, err := e.store.GetNeighbors(q.TargetID, e.traversalDepth, direction)
		if err != nil {
			return nil, err
		}
		nodes := e.applyWhere(sub.Nodes, q.Where)
		nodes = applyLimit(nodes, q.Limit)
		return &Result{Kind: KindFind, Nodes: nodes, Edges: sub.Edges}, nil
	default:
		nodes, err := e.findResources(q)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindFind, Nodes: nodes}, nil
	}
}

func (e *Executor) findResources(q *Query) ([]*models.Node, error) {
	filter, rest := compileFilter(q.Where)
	nodes, err := e.store.QueryNodes(filter)
	if err != nil {
		return nil, err
	}
	nodes = e.applyWhere(nodes, rest)
	// LIMIT truncates only after filtering; truncating first would hide
	// legitimate matches behind an under-filtered prefix.
	return applyLimit(nodes, q.Limit), nil
}

// compileFilter pushes simple equality predicates down into the storage
// filter and returns the predicates that must be evaluated in memory.
func compileFilter(preds []Predicate) (models.NodeFilter, []Predicate) {
	var filter models.NodeFilter
	var rest []Predicate
	for _, p := range preds {
		if p.Operator == OpEq && !p.IsNumber {
			switch p.Field {
			case "provider":
				if filter.Provider == "" {
					filter.Provider = p.StrValue
					continue
				}
			case "account":
				if filter.Account == "" {
					filter.Account = p.StrValue
					continue
				}
			case "region":
				if filter.Region == "" {
					filter.Region = p.StrValue
					continue
				}
			case "resourceType", "resource_type":
				if filter.ResourceType == "" {
					filter.ResourceType = p.StrValue
					continue
				}
			case "status":
				if filter.Status == "" {
					filter.Status = p.StrValue
					continue
				}
			}
		}
		rest = append(rest, p)
	}
	return filter, rest
}

func (e *Executor) applyWhere(nodes []*models.Node, preds []Predicate) []*models.Node {
	if len(preds) == 0 {
		return nodes
	}
	out := nodes[:0:0]
	for _, n := range nodes {
		if e.matchesAll(n, preds) {
			out = append(out, n)
		}
	}
	return out
}

func (e *Executor) matchesAll(n *models.Node, preds []Predicate) bool {
	for _, p := range preds {
		if !e.matches(n, p) {
			return false
		}
	}
	return true
}

func (e *Executor) matches(n *models.Node, p Predicate) bool {
	switch p.Operator {
	case OpLike:
		return e.matchLike(n.FieldString(p.Field), p.StrValue)
	case OpMatches:
		return e.matchRegex(n.FieldString(p.Field), p.StrValue)
	case OpEq, OpNeq:
		eq := false
		if p.IsNumber {
			v, ok := n.Field(p.Field)
			num, isNum := v.(float64)
			eq = ok && isNum && num == p.NumValue
		} else {
			eq = n.FieldString(p.Field) == p.StrValue
		}
		if p.Operator == OpNeq {
			return !eq
		}
		return eq
	default:
		v, ok := n.Field(p.Field)
		if !ok {
			return false
		}
		num, isNum := v.(float64)
		if !isNum || !p.IsNumber {
			return false
		}
		switch p.Operator {
		case OpLt:
			return num < p.NumValue
		case OpLte:
			return num <= p.NumValue
		case OpGt:
			return num > p.NumValue
		case OpGte:
			return num >= p.NumValue
		}
		return false
	}
}

// matchLike evaluates a SQL-style wildcard pattern: % matches any run, _ a
// single character. A malformed pattern matches nothing.
func (e *Executor) matchLike(value, pattern string) bool {
	var sb strings.Builder
	sb.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return e.matchRegex(value, sb.String())
}

// matchRegex evaluates a regular-expression predicate. The pattern length cap
// and catch-and-degrade on invalid patterns exist specifically so untrusted
// query text can never crash or stall the engine.
func (e *Executor) matchRegex(value, pattern string) bool {
	if len(pattern) > e.maxRegexLength {
		logger.Debugf("Rejecting oversized pattern (%d > %d chars)", len(pattern), e.maxRegexLength)
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logger.Debugf("Rejecting invalid pattern: %v", err)
		return false
	}
	return re.MatchString(value)
}

func applyLimit(nodes []*models.Node, limit int) []*models.Node {
	if limit < 0 || limit >= len(nodes) {
		return nodes
	}
	return nodes[:limit]
}

func (e *Executor) runSummarize(q *Query) (*Result, error) {
	nodes, err := e.findResources(&Query{Kind: KindFind, Target: TargetResources, Where: q.Where, Limit: -1})
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*Bucket)
	order := []string{}
	for _, n := range nodes {
		key := n.FieldString(q.GroupBy)
		if key == "" {
			key = "(none)"
		}
		b, ok := byKey[key]
		if !ok {
			b = &Bucket{Key: key}
			byKey[key] = b
			order = append(order, key)
		}
		b.Count++
		if q.Aggregate == AggCost && n.CostMonthly != nil {
			b.Cost += *n.CostMonthly
		}
	}

	result := &Result{Kind: KindSummarize}
	for _, key := range order {
		result.Buckets = append(result.Buckets, *byKey[key])
	}
	return result, nil
}
