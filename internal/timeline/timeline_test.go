package timeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 0, WordCount("   \n\t "))
	assert.Equal(t, 3, WordCount("a b  c"))
	assert.Equal(t, 2, WordCount("\nhello   world\n"))
}

func TestBuildLadderProperties(t *testing.T) {
	for _, tc := range []struct {
		minutes, step int
	}{
		{5, 30},
		{1, 6},
		{240, 30},
		{7, 45},
	} {
		t.Run(fmt.Sprintf("%dmin_%ds", tc.minutes, tc.step), func(t *testing.T) {
			ladder := BuildLadder(tc.minutes, tc.step)
			require.NotEmpty(t, ladder)

			assert.Equal(t, tc.step, StampToSeconds(ladder[0]))
			last := StampToSeconds(ladder[len(ladder)-1])
			assert.LessOrEqual(t, last, tc.minutes*60)

			for i := 1; i < len(ladder); i++ {
				assert.Equal(t, tc.step, StampToSeconds(ladder[i])-StampToSeconds(ladder[i-1]))
			}

			// Deterministic for fixed inputs.
			assert.Equal(t, ladder, BuildLadder(tc.minutes, tc.step))
		})
	}
}

func TestBuildLadderDegenerate(t *testing.T) {
	assert.Nil(t, BuildLadder(0, 30))
	assert.Nil(t, BuildLadder(5, 0))
	assert.Nil(t, BuildLadder(-1, 30))
}

func TestBuildLadderCoversFullDuration(t *testing.T) {
	ladder := BuildLadder(5, 30)
	require.Len(t, ladder, 10)
	assert.Equal(t, "00:30", ladder[0])
	assert.Equal(t, "05:00", ladder[9])
}

func TestStampRoundTrip(t *testing.T) {
	for m := 0; m < 250; m += 7 {
		for s := 0; s < 60; s += 13 {
			stamp := FormatStamp(m*60 + s)
			assert.Equal(t, m*60+s, StampToSeconds(stamp), "stamp %s", stamp)
		}
	}
}

func TestStampToSeconds(t *testing.T) {
	assert.Equal(t, 90, StampToSeconds("01:30"))
	assert.Equal(t, 3723, StampToSeconds("01:02:03"))
	assert.Equal(t, 0, StampToSeconds("garbage"))
	assert.Equal(t, 0, StampToSeconds("1:2:3:4"))
	assert.Equal(t, 0, StampToSeconds("-1:30"))
	assert.Equal(t, 0, StampToSeconds(""))
}
