package embedding

import (
	"reflect"
	"testing"
)

func TestPoolHidden(t *testing.T) {
	// Three tokens of dimension 2; the last one is padding.
	data := []float32{1, 2, 3, 4, 100, 100}
	mask := []int64{1, 1, 0}

	if got := poolHidden(data, mask, 2, "mean"); !reflect.DeepEqual(got, []float32{2, 3}) {
		t.Errorf("mean: got %v", got)
	}
	if got := poolHidden(data, mask, 2, "cls"); !reflect.DeepEqual(got, []float32{1, 2}) {
		t.Errorf("cls: got %v", got)
	}
	if got := poolHidden([]float32{5, 6}, mask, 2, ""); !reflect.DeepEqual(got, []float32{5, 6}) {
		t.Errorf("pooled: got %v", got)
	}
	if got := poolHidden(data, []int64{0, 0, 0}, 2, "mean"); !reflect.DeepEqual(got, []float32{0, 0}) {
		t.Errorf("empty mask: got %v", got)
	}
}
