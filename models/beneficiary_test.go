package models

import "testing"

func TestFilterBeneficiariesByProject(t *testing.T) {
	beneficiaries := []Beneficiary{
		{ID: "b1", IndividualId: "i1", ProjectId: "P1", LocationId: "L1"},
		{ID: "b2", IndividualId: "i2", ProjectId: "P2", LocationId: "L1"},
		{ID: "b3", IndividualId: "i3", ProjectId: "P1", LocationId: "L9"},
	}

	got := FilterBeneficiaries(beneficiaries, SelectionCriteria{ProjectIds: []string{"P1"}})
	if len(got) != 2 {
		t.Fatalf("expected 2 beneficiaries, got %d", len(got))
	}
	for _, b := range got {
		if b.ProjectId != "P1" {
			t.Errorf("beneficiary %s has project %s, want P1", b.ID, b.ProjectId)
		}
	}
}

func TestFilterBeneficiariesByLocation(t *testing.T) {
	beneficiaries := []Beneficiary{
		{ID: "b1", LocationId: "L1"},
		{ID: "b2", LocationId: "L2"},
	}
	// L2 stands in for a pre-expanded subtree
	got := FilterBeneficiaries(beneficiaries, SelectionCriteria{LocationIds: []string{"L2"}})
	if len(got) != 1 || got[0].ID != "b2" {
		t.Fatalf("expected only b2, got %v", got)
	}
}

func TestMatchesConditions(t *testing.T) {
	b := Beneficiary{JsonExt: JSONMap{"able_bodied": true, "village": "Kigoma North"}}

	cases := []struct {
		name string
		cond FilterCondition
		want bool
	}{
		{"eq match", FilterCondition{Field: "able_bodied", Op: "eq", Value: "true"}, true},
		{"eq default op", FilterCondition{Field: "able_bodied", Value: "true"}, true},
		{"eq mismatch", FilterCondition{Field: "able_bodied", Op: "eq", Value: "false"}, false},
		{"neq", FilterCondition{Field: "able_bodied", Op: "neq", Value: "false"}, true},
		{"contains", FilterCondition{Field: "village", Op: "contains", Value: "kigoma"}, true},
		{"contains miss", FilterCondition{Field: "village", Op: "contains", Value: "south"}, false},
		{"missing field", FilterCondition{Field: "age", Op: "eq", Value: "30"}, false},
		{"unknown op", FilterCondition{Field: "village", Op: "gt", Value: "a"}, false},
	}
	for _, tc := range cases {
		if got := matchesConditions(b, []FilterCondition{tc.cond}); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
