package admin

import (
	"testing"
	"time"

	"cloud.google.com/go/bigtable/admin/apiv2/adminpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func TestParseGcRule(t *testing.T) {
	tests := []struct {
		in   string
		want *adminpb.GcRule
	}{
		{"", nil},
		{"versions=3", MaxNumVersions(3)},
		{"age=72h", MaxAge(72 * time.Hour)},
		{"versions=3&age=24h", Intersection(MaxNumVersions(3), MaxAge(24*time.Hour))},
		{"versions=1 | age=1h", Union(MaxNumVersions(1), MaxAge(time.Hour))},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGcRule(tt.in)
			require.NoError(t, err)
			assert.True(t, proto.Equal(tt.want, got), "got %v", got)
		})
	}
}

func TestParseGcRule_Errors(t *testing.T) {
	for _, in := range []string{"versions", "versions=0", "versions=x", "age=-1h", "ttl=1h", "versions=1&age=1h|versions=2"} {
		_, err := ParseGcRule(in)
		assert.Error(t, err, in)
	}
}

func TestFormatGcRule(t *testing.T) {
	assert.Equal(t, "versions=3&age=24h0m0s", FormatGcRule(Intersection(MaxNumVersions(3), MaxAge(24*time.Hour))))
	assert.Equal(t, "versions=1|(versions=2&age=1h0m0s)",
		FormatGcRule(Union(MaxNumVersions(1), Intersection(MaxNumVersions(2), MaxAge(time.Hour)))))
	assert.Equal(t, "", FormatGcRule(nil))
}

func TestColumnFamilyModifications(t *testing.T) {
	c := CreateFamily("f", MaxNumVersions(1))
	assert.Equal(t, "f", c.GetId())
	assert.NotNil(t, c.GetCreate())

	u := UpdateFamily("f", MaxAge(time.Hour))
	assert.NotNil(t, u.GetUpdate())

	d := DropFamily("f")
	assert.True(t, d.GetDrop())
}

func TestNewIamPolicy_SortedBindings(t *testing.T) {
	p := NewIamPolicy(map[string][]string{
		"roles/b": {"user:x"},
		"roles/a": {"user:y", "user:z"},
	}, []byte("e"), 1)
	require.Len(t, p.GetBindings(), 2)
	assert.Equal(t, "roles/a", p.GetBindings()[0].GetRole())
	assert.Equal(t, []string{"user:y", "user:z"}, p.GetBindings()[0].GetMembers())
	assert.Equal(t, int32(1), p.GetVersion())
}
