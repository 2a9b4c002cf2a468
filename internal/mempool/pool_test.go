package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{name: "zero size", input: 0, expected: 1024},
		{name: "small size gets minimum", input: 1, expected: 1024},
		{name: "exactly 1024", input: 1024, expected: 1024},
		{name: "just over 1024", input: 1025, expected: 2048},
		{name: "odd number", input: 1500, expected: 2048},
		{name: "large size", input: 10000, expected: 10240},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sizeClass(tt.input))
		})
	}
}

func TestGetBoolIsZeroedAfterReuse(t *testing.T) {
	buf := GetBool(3000)
	assert.Len(t, buf, 3000)
	for i := range buf {
		buf[i] = true
	}
	PutBool(buf)

	again := GetBool(2500)
	assert.Len(t, again, 2500)
	for i, v := range again {
		if v {
			t.Fatalf("index %d not cleared", i)
		}
	}
	PutBool(again)
}

func TestGetInt32IsZeroedAfterReuse(t *testing.T) {
	buf := GetInt32(100)
	for i := range buf {
		buf[i] = int32(i + 1)
	}
	PutInt32(buf)

	again := GetInt32(100)
	for _, v := range again {
		assert.Zero(t, v)
	}
	PutInt32(again)
}

func TestPutNilAndForeignSlices(t *testing.T) {
	assert.NotPanics(t, func() {
		PutBool(nil)
		PutInt32(nil)
		PutBool(make([]bool, 10))
		PutInt32(make([]int32, 1500))
	})
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				m := GetBool(4096)
				m[0] = true
				PutBool(m)
			}
		}()
	}
	wg.Wait()
}
