package follow

import (
	"reflect"
	"testing"
)

func TestMutualBothDirections(t *testing.T) {
	if !Mutual([]string{"b"}, nil, []string{"a"}, nil, "a", "b") {
		t.Fatalf("a<->b follow each other, want mutual")
	}
}

func TestMutualOneWayIsNotMutual(t *testing.T) {
	if Mutual([]string{"b"}, nil, nil, nil, "a", "b") {
		t.Fatalf("one-way follow must not be mutual")
	}
	if Mutual(nil, nil, []string{"a"}, nil, "a", "b") {
		t.Fatalf("one-way follow must not be mutual")
	}
}

func TestMutualFollowersCorroboration(t *testing.T) {
	// following 数组缺失，但双方 followers 能互相印证
	if !Mutual(nil, []string{"b"}, nil, []string{"a"}, "a", "b") {
		t.Fatalf("corroborating followers arrays should count as mutual")
	}
	// 只有单侧旁证不算
	if Mutual(nil, []string{"b"}, nil, nil, "a", "b") {
		t.Fatalf("one-sided corroboration must not be mutual")
	}
}

func TestIntersectDedupeAndOrder(t *testing.T) {
	got := Intersect([]string{"c", "a", "a", "b", "x"}, []string{"b", "a", "c"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Intersect = %v, want %v", got, want)
	}
}

func TestIntersectEmpty(t *testing.T) {
	if got := Intersect(nil, []string{"a"}); got != nil {
		t.Fatalf("empty following should intersect to nothing, got %v", got)
	}
}
