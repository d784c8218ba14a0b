package query

import "testing"

func TestResultFormatMessageOnly(t *testing.T) {
	r := Result{Message: "created table users"}
	if got := r.Format(); got != "created table users" {
		t.Errorf("unexpected format: %q", got)
	}
}

func TestResultFormatHeaderAndRows(t *testing.T) {
	r := Result{
		Header: []string{"id", "name"},
		Rows:   [][]string{{"1", "ram"}, {"2", "sam"}},
	}
	want := "id\tname\n1\tram\n2\tsam"
	if got := r.Format(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResultFormatEmptyResultIsHeaderAlone(t *testing.T) {
	r := Result{Header: []string{"id", "name"}}
	if got := r.Format(); got != "id\tname" {
		t.Errorf("unexpected format for empty result set: %q", got)
	}
}
