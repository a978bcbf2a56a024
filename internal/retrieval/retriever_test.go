package retrieval

import (
	"reflect"
	"testing"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty", "", nil},
		{"only short tokens", "a an the is of", nil},
		{"lowercases", "VACATION Policy", []string{"vacation", "policy"}},
		{"strips punctuation", `What's the "vacation" policy?`, []string{"what's", "vacation", "policy"}},
		{"length filter applies before strip", "me? you: it.", []string{"you"}},
		{"regex metacharacters kept literal", "what is (a+b)*c?", []string{"a+b)*c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Terms(tt.query); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Terms(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestRetrieve_EmptyTermSet(t *testing.T) {
	r := New(3)
	got := r.Retrieve("is it ok", []string{"vacation policy allows 15 days"})
	if len(got) != 0 {
		t.Errorf("Retrieve with no usable terms = %v, want empty", got)
	}
}

func TestRetrieve_SingleMatch(t *testing.T) {
	chunks := []string{
		"expense reports are due monthly",
		"vacation policy allows 15 days per year",
		"the office closes at 6pm",
	}
	r := New(3)
	got := r.Retrieve("What is the vacation policy?", chunks)
	if len(got) == 0 || got[0] != chunks[1] {
		t.Fatalf("Retrieve = %v, want %q first", got, chunks[1])
	}
}

func TestRetrieve_ZeroScoresDropped(t *testing.T) {
	chunks := []string{"alpha beta", "gamma delta"}
	r := New(3)
	if got := r.Retrieve("vacation policy", chunks); len(got) != 0 {
		t.Errorf("Retrieve = %v, want empty for no matches", got)
	}
}

func TestRetrieve_TopKBound(t *testing.T) {
	chunks := []string{
		"vacation one", "vacation two", "vacation three",
		"vacation four", "vacation five",
	}
	r := New(3)
	got := r.Retrieve("vacation", chunks)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
}

func TestScore_DescendingStable(t *testing.T) {
	chunks := []string{
		"vacation mentioned once",
		"vacation vacation vacation",
		"vacation vacation",
		"also one vacation here",
	}
	r := New(4)
	got := r.Score("vacation days", chunks)

	wantOrder := []string{chunks[1], chunks[2], chunks[0], chunks[3]}
	if len(got) != len(wantOrder) {
		t.Fatalf("len = %d, want %d", len(got), len(wantOrder))
	}
	for i, w := range wantOrder {
		if got[i].Text != w {
			t.Errorf("result[%d] = %q, want %q", i, got[i].Text, w)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("scores not non-increasing at %d: %d > %d", i, got[i].Score, got[i-1].Score)
		}
	}
}

func TestScore_SumsAcrossTerms(t *testing.T) {
	r := New(3)
	got := r.Score("remote working", []string{"remote working beats remote commuting"})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	// "remote" twice + "working" once.
	if got[0].Score != 3 {
		t.Errorf("score = %d, want 3", got[0].Score)
	}
}

func TestRetrieve_CaseInsensitive(t *testing.T) {
	r := New(3)
	got := r.Retrieve("VACATION", []string{"Vacation Policy: 15 Days"})
	if len(got) != 1 {
		t.Fatalf("Retrieve = %v, want one match", got)
	}
}

func TestRetrieve_MetacharactersDoNotPanic(t *testing.T) {
	r := New(3)
	chunks := []string{"the (a+b)*c identity holds"}
	got := r.Retrieve("(a+b)*c", chunks)
	if len(got) != 1 {
		t.Errorf("Retrieve = %v, want literal match", got)
	}
}
