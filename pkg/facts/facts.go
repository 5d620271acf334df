// Package facts implements the assistant's long-term fact memory: a small
// keyword-indexed store the model writes to with store_fact and reads back
// with lookup_fact. Facts survive across sessions via an atomic JSON file.
//
// Deletion is intentionally unsupported; facts are only added or
// overwritten in place.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openvalet/go-valet/pkg/store"
	"github.com/openvalet/go-valet/pkg/timefmt"
	"github.com/openvalet/go-valet/pkg/tools"
	"github.com/openvalet/go-valet/pkg/value"
)

// Fact is one remembered item. Keywords are stored lowercased.
type Fact struct {
	ID        int      `json:"id"`
	Keywords  []string `json:"keywords"`
	Fact      string   `json:"fact"`
	Timestamp string   `json:"timestamp"`
}

// DB is the persisted fact database. NextID strictly exceeds every ID not
// produced via explicit overwrite.
type DB struct {
	NextID int          `json:"next_id"`
	Facts  map[int]Fact `json:"facts"`
}

// Memory owns the fact database file and exposes the fact tools.
type Memory struct {
	file *store.DataFile[DB]
	now  func() time.Time
}

// New opens (or initializes) the fact memory at path and starts its
// asynchronous load.
func New(path string) (*Memory, error) {
	file, err := store.New(path, DB{NextID: 1, Facts: map[int]Fact{}})
	if err != nil {
		return nil, err
	}
	return &Memory{file: file, now: time.Now}, nil
}

// OnLoaded registers a callback for load completion (immediate if loaded).
func (m *Memory) OnLoaded(cb func()) {
	m.file.OnLoaded(cb)
}

// Close flushes pending writes and releases the store.
func (m *Memory) Close() error {
	return m.file.Close()
}

// AllKeywords returns every keyword in the store, deduplicated and sorted.
func (m *Memory) AllKeywords() []string {
	db, ok := m.file.Contents()
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	for _, f := range db.Facts {
		for _, k := range f.Keywords {
			seen[k] = struct{}{}
		}
	}
	keywords := make([]string, 0, len(seen))
	for k := range seen {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords
}

// AllKeywordsJSON renders AllKeywords as a JSON array string, for
// substitution into the system prompt.
func (m *Memory) AllKeywordsJSON() string {
	keywords := m.AllKeywords()
	if keywords == nil {
		keywords = []string{}
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// Tools returns the store_fact and lookup_fact capabilities.
func (m *Memory) Tools() []tools.Tool {
	return []tools.Tool{m.storeTool(), m.lookupTool()}
}

func (m *Memory) storeTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name: "store_fact",
			Description: "Remembers a fact, which can later be looked up using `lookup_fact`. " +
				"Include several descriptive keywords so you can search for the fact in future. " +
				"For example, if the user tells you they're putting the mustard in the cupboard above the oven, " +
				"suitable keywords might be `[\"mustard\", \"location\", \"cupboard\", \"kitchen\"]`, and the `fact` " +
				"field should include the full description: `\"User put the mustard in the cupboard above the oven\"`.",
			InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
				"keywords": {
					Type:        "array",
					Items:       &jsonschema.Schema{Type: "string"},
					Description: "List of keywords with which this fact will be associated.",
				},
				"fact": {
					Type:        "string",
					Description: "The full description of the fact. This will be returned from `lookup_fact` when searching with the relevant keywords.",
				},
				"overwrite_id": {
					Type:        "number",
					Description: "Optional. If set, overwrite the fact with this numeric ID, updating its keywords and description.",
				},
			}, "keywords", "fact"),
		},
		Handler: m.handleStore,
	}
}

func (m *Memory) handleStore(ctx context.Context, args value.Object, status *tools.Status, respond func(value.Value)) {
	keywords, errResult := keywordsArg(args)
	if errResult != nil {
		respond(errResult)
		return
	}

	factText, ok := stringArg(args, "fact")
	if !ok {
		respond(tools.Errorf("`fact` must be present and of type `string`"))
		return
	}

	overwriteID, ok, errResult := optionalIntArg(args, "overwrite_id")
	if errResult != nil {
		respond(errResult)
		return
	}

	db, loaded := m.file.Contents()
	if !loaded {
		respond(tools.Errorf("fact store is not loaded"))
		return
	}

	id := db.NextID
	nextID := db.NextID + 1
	if ok {
		// Explicit overwrite keeps NextID unchanged.
		id = overwriteID
		nextID = db.NextID
		status.Set(fmt.Sprintf("Overwriting fact %d: %q\nKeywords: [%s]", id, factText, strings.Join(keywords, ", ")))
	} else {
		status.Set(fmt.Sprintf("Adding new fact %d: %q\nKeywords: [%s]", id, factText, strings.Join(keywords, ", ")))
	}

	entry := Fact{
		ID:        id,
		Keywords:  keywords,
		Fact:      factText,
		Timestamp: timefmt.Descriptive(m.now()),
	}

	updated := DB{NextID: nextID, Facts: make(map[int]Fact, len(db.Facts)+1)}
	for k, v := range db.Facts {
		updated.Facts[k] = v
	}
	updated.Facts[id] = entry

	if err := m.file.Write(updated); err != nil {
		respond(tools.Errorf("failed to persist fact: %v", err))
		return
	}

	respond(value.Object{
		{Key: "result", Value: value.Str("success")},
		{Key: "id", Value: value.Number(id)},
	})
}

func (m *Memory) lookupTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name: "lookup_fact",
			Description: "Returns a list of facts which were previously stored using `store_fact`, along with " +
				"their IDs and timestamps. This will return facts matching any of the specified keywords. " +
				"For example, to look up where the user parked their car, you could specify keywords " +
				"`[\"car\", \"vehicle\", \"parking\"]`.",
			InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
				"keywords": {
					Type:        "array",
					Items:       &jsonschema.Schema{Type: "string"},
					Description: "List of keywords to search for. If empty (`[]`), all facts are returned with no filter.",
				},
			}, "keywords"),
		},
		Handler: m.handleLookup,
	}
}

func (m *Memory) handleLookup(ctx context.Context, args value.Object, status *tools.Status, respond func(value.Value)) {
	keywords, errResult := keywordsArg(args)
	if errResult != nil {
		respond(errResult)
		return
	}

	db, loaded := m.file.Contents()
	if !loaded {
		respond(tools.Errorf("fact store is not loaded"))
		return
	}

	var matches []Fact
	for _, f := range db.Facts {
		if len(keywords) == 0 || intersects(f.Keywords, keywords) {
			matches = append(matches, f)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	if matches == nil {
		matches = []Fact{}
	}

	status.Set(fmt.Sprintf("Retrieved %d fact(s) matching keywords [%s]", len(matches), strings.Join(keywords, ", ")))

	factsValue, err := value.FromGo(matches)
	if err != nil {
		respond(tools.Errorf("failed to encode facts: %v", err))
		return
	}

	respond(value.Object{
		{Key: "count", Value: value.Number(len(matches))},
		{Key: "facts", Value: factsValue},
	})
}

// keywordsArg extracts and lowercases the required keywords array.
func keywordsArg(args value.Object) ([]string, value.Value) {
	raw, ok := args.Get("keywords")
	if !ok {
		return nil, tools.Errorf("`keywords` must be present, with type `array`")
	}
	arr, ok := raw.(value.Array)
	if !ok {
		return nil, tools.Errorf("`keywords` must be present, with type `array`")
	}
	strs, ok := value.Strings(arr)
	if !ok {
		return nil, tools.Errorf("`keywords` array element type must be `string`")
	}

	out := make([]string, 0, len(strs))
	seen := make(map[string]struct{}, len(strs))
	for _, s := range strs {
		s = strings.ToLower(s)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

func stringArg(args value.Object, key string) (string, bool) {
	raw, ok := args.Get(key)
	if !ok {
		return "", false
	}
	s, ok := raw.(value.Str)
	return string(s), ok
}

func optionalIntArg(args value.Object, key string) (int, bool, value.Value) {
	raw, ok := args.Get(key)
	if !ok {
		return 0, false, nil
	}
	n, ok := raw.(value.Number)
	if !ok || float64(n) != math.Trunc(float64(n)) {
		return 0, false, tools.Errorf("`%s` must be an integer", key)
	}
	return int(n), true, nil
}

func intersects(factKeywords, query []string) bool {
	for _, q := range query {
		for _, k := range factKeywords {
			if k == q {
				return true
			}
		}
	}
	return false
}

// Flush waits for any pending durable write. Used at shutdown and in tests.
func (m *Memory) Flush() error {
	return m.file.Flush()
}
