package admin

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigtable/admin/apiv2/adminpb"
	"google.golang.org/protobuf/types/known/durationpb"
)

// TableConfig describes a table to create.
type TableConfig struct {
	ColumnFamilies map[string]*adminpb.GcRule
	InitialSplits  []string
	Granularity    adminpb.Table_TimestampGranularity
}

func (c TableConfig) request(parent, tableID string) *adminpb.CreateTableRequest {
	families := make(map[string]*adminpb.ColumnFamily, len(c.ColumnFamilies))
	for name, rule := range c.ColumnFamilies {
		families[name] = &adminpb.ColumnFamily{GcRule: rule}
	}
	splits := make([]*adminpb.CreateTableRequest_Split, 0, len(c.InitialSplits))
	for _, key := range c.InitialSplits {
		splits = append(splits, &adminpb.CreateTableRequest_Split{Key: []byte(key)})
	}
	return &adminpb.CreateTableRequest{
		Parent:  parent,
		TableId: tableID,
		Table: &adminpb.Table{
			ColumnFamilies: families,
			Granularity:    c.Granularity,
		},
		InitialSplits: splits,
	}
}

// MaxNumVersions keeps at most n cells per column.
func MaxNumVersions(n int32) *adminpb.GcRule {
	return &adminpb.GcRule{Rule: &adminpb.GcRule_MaxNumVersions{MaxNumVersions: n}}
}

// MaxAge drops cells older than d.
func MaxAge(d time.Duration) *adminpb.GcRule {
	return &adminpb.GcRule{Rule: &adminpb.GcRule_MaxAge{MaxAge: durationpb.New(d)}}
}

// Intersection drops cells matched by every rule.
func Intersection(rules ...*adminpb.GcRule) *adminpb.GcRule {
	return &adminpb.GcRule{Rule: &adminpb.GcRule_Intersection_{
		Intersection: &adminpb.GcRule_Intersection{Rules: rules},
	}}
}

// Union drops cells matched by any rule.
func Union(rules ...*adminpb.GcRule) *adminpb.GcRule {
	return &adminpb.GcRule{Rule: &adminpb.GcRule_Union_{
		Union: &adminpb.GcRule_Union{Rules: rules},
	}}
}

// ParseGcRule parses the command line form of a GC rule:
//
//	versions=3
//	age=72h
//	versions=3&age=24h   (intersection)
//	versions=3|age=24h   (union)
//
// Mixing & and | in one rule is rejected. An empty string means no rule.
func ParseGcRule(s string) (*adminpb.GcRule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	hasAnd, hasOr := strings.Contains(s, "&"), strings.Contains(s, "|")
	if hasAnd && hasOr {
		return nil, fmt.Errorf("gc rule %q mixes & and |", s)
	}
	sep := ""
	switch {
	case hasAnd:
		sep = "&"
	case hasOr:
		sep = "|"
	default:
		return parseSingleRule(s)
	}

	var rules []*adminpb.GcRule
	for _, part := range strings.Split(s, sep) {
		r, err := parseSingleRule(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if sep == "&" {
		return Intersection(rules...), nil
	}
	return Union(rules...), nil
}

func parseSingleRule(s string) (*adminpb.GcRule, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return nil, fmt.Errorf("gc rule %q: expected key=value", s)
	}
	switch key {
	case "versions":
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("gc rule %q: versions must be a positive integer", s)
		}
		return MaxNumVersions(int32(n)), nil
	case "age":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("gc rule %q: age must be a positive duration", s)
		}
		return MaxAge(d), nil
	default:
		return nil, fmt.Errorf("gc rule %q: unknown key %q", s, key)
	}
}

// FormatGcRule renders rule in the form ParseGcRule accepts, nesting with parentheses.
func FormatGcRule(rule *adminpb.GcRule) string {
	if rule == nil {
		return ""
	}
	switch r := rule.GetRule().(type) {
	case *adminpb.GcRule_MaxNumVersions:
		return "versions=" + strconv.Itoa(int(r.MaxNumVersions))
	case *adminpb.GcRule_MaxAge:
		return "age=" + r.MaxAge.AsDuration().String()
	case *adminpb.GcRule_Intersection_:
		return joinRules(r.Intersection.GetRules(), "&")
	case *adminpb.GcRule_Union_:
		return joinRules(r.Union.GetRules(), "|")
	default:
		return ""
	}
}

func joinRules(rules []*adminpb.GcRule, sep string) string {
	parts := make([]string, 0, len(rules))
	for _, r := range rules {
		s := FormatGcRule(r)
		if _, nested := r.GetRule().(*adminpb.GcRule_Intersection_); nested {
			s = "(" + s + ")"
		}
		if _, nested := r.GetRule().(*adminpb.GcRule_Union_); nested {
			s = "(" + s + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep)
}

// ColumnFamilyModification is one step of a ModifyColumnFamilies request.
type ColumnFamilyModification = *adminpb.ModifyColumnFamiliesRequest_Modification

func CreateFamily(id string, rule *adminpb.GcRule) ColumnFamilyModification {
	return &adminpb.ModifyColumnFamiliesRequest_Modification{
		Id:  id,
		Mod: &adminpb.ModifyColumnFamiliesRequest_Modification_Create{Create: &adminpb.ColumnFamily{GcRule: rule}},
	}
}

func UpdateFamily(id string, rule *adminpb.GcRule) ColumnFamilyModification {
	return &adminpb.ModifyColumnFamiliesRequest_Modification{
		Id:  id,
		Mod: &adminpb.ModifyColumnFamiliesRequest_Modification_Update{Update: &adminpb.ColumnFamily{GcRule: rule}},
	}
}

func DropFamily(id string) ColumnFamilyModification {
	return &adminpb.ModifyColumnFamiliesRequest_Modification{
		Id:  id,
		Mod: &adminpb.ModifyColumnFamiliesRequest_Modification_Drop{Drop: true},
	}
}

// FamilyNames returns the column family names of t, sorted.
func FamilyNames(t *adminpb.Table) []string {
	names := make([]string, 0, len(t.GetColumnFamilies()))
	for name := range t.GetColumnFamilies() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
