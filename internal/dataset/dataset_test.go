package dataset_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/born-ml/radioml/internal/dataset"
	"github.com/born-ml/radioml/internal/parallel"
	"github.com/sbinet/npyio/npy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallLayout() dataset.SplitOptions {
	o := dataset.DefaultSplitOptions()
	o.Mods = 3
	o.SNRs = 4
	o.FramesPerGroup = 20
	return o
}

func openSynthetic(t *testing.T, o dataset.SplitOptions, frameLen int) *dataset.Dataset {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, dataset.WriteSynthetic(dir, o, frameLen))
	ds, err := dataset.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func TestOpenAndItem(t *testing.T) {
	o := smallLayout()
	ds := openSynthetic(t, o, 16)

	assert.Equal(t, o.Total(), ds.Len())
	assert.Equal(t, 16, ds.FrameLength())
	assert.Len(t, ds.Classes(), 24)
	assert.Equal(t, "OOK", ds.Classes()[0])
	assert.Equal(t, "OQPSK", ds.Classes()[23])
	assert.Len(t, ds.SNRs(), 26)
	assert.Equal(t, -20, ds.SNRs()[0])
	assert.Equal(t, 30, ds.SNRs()[25])

	// Index 20*4*2 + 20*3 + 5 is modulation 2, SNR index 3.
	i := 20*4*2 + 20*3 + 5
	frame, mod, snr, err := ds.Item(i)
	require.NoError(t, err)
	assert.Equal(t, 2, mod)
	assert.Equal(t, -14, snr)
	require.Len(t, frame[0], 16)
	require.Len(t, frame[1], 16)
	assert.InDelta(t, float32(i)+0.003, frame[0][3], 1e-3)
	assert.InDelta(t, -(float32(i) + 0.003), frame[1][3], 1e-3)
}

func TestItemOutOfRange(t *testing.T) {
	ds := openSynthetic(t, smallLayout(), 8)

	_, _, _, err := ds.Item(ds.Len())
	require.ErrorIs(t, err, dataset.ErrIndexOutOfRange)
	_, _, _, err = ds.Item(-1)
	require.ErrorIs(t, err, dataset.ErrIndexOutOfRange)
}

func TestOpenMissingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, dataset.WriteSynthetic(dir, smallLayout(), 8))
	require.NoError(t, os.Remove(filepath.Join(dir, dataset.SNRFile)))

	_, err := dataset.Open(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = dataset.Open(filepath.Join(dir, "nope"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestOpenShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, dataset.WriteSynthetic(dir, smallLayout(), 8))
	// Replace the SNR array with one of the wrong length.
	require.NoError(t, dataset.WriteNPY(filepath.Join(dir, dataset.SNRFile), []int{3}, make([]int64, 3)))

	_, err := dataset.Open(dir)
	assert.ErrorIs(t, err, dataset.ErrShape)
}

func TestOpenRejectsNonFloatFrames(t *testing.T) {
	dir := t.TempDir()
	o := smallLayout()
	require.NoError(t, dataset.WriteSynthetic(dir, o, 8))
	require.NoError(t, dataset.WriteNPY(filepath.Join(dir, dataset.FramesFile),
		[]int{o.Total(), 8, 2}, make([]float64, o.Total()*8*2)))

	_, err := dataset.Open(dir)
	assert.ErrorIs(t, err, dataset.ErrUnsupportedLayout)
}

func TestOpenRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, dataset.WriteSynthetic(dir, smallLayout(), 8))
	require.NoError(t, os.WriteFile(filepath.Join(dir, dataset.LabelsFile), []byte("not an npy file"), 0o600))

	_, err := dataset.Open(dir)
	assert.ErrorIs(t, err, dataset.ErrUnsupportedLayout)
}

func TestSplitGroupsDisjointAndComplete(t *testing.T) {
	o := dataset.DefaultSplitOptions()
	p, err := dataset.Split(o)
	require.NoError(t, err)

	groups := o.Mods * o.SNRs
	assert.Len(t, p.Test, groups*410)
	assert.Len(t, p.Train, groups*3686)

	seen := make([]int8, o.Total())
	for _, i := range p.Test {
		seen[i]++
	}
	for _, i := range p.Train {
		seen[i] += 2
	}
	for i, s := range seen {
		if s != 1 && s != 2 {
			t.Fatalf("index %d seen with mask %d", i, s)
		}
	}

	// Each group's test slice lies inside the group.
	for g := 0; g < groups; g++ {
		for _, i := range p.Test[g*410 : (g+1)*410] {
			require.Equal(t, g, i/o.FramesPerGroup)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	o := smallLayout()
	a, err := dataset.Split(o)
	require.NoError(t, err)
	b, err := dataset.Split(o)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	o.Seed = 7
	c, err := dataset.Split(o)
	require.NoError(t, err)
	assert.NotEqual(t, a.Test, c.Test)
}

func TestSplitMatchesNumPyShuffle(t *testing.T) {
	p, err := dataset.Split(dataset.DefaultSplitOptions())
	require.NoError(t, err)

	// np.random.seed(2018), then np.random.shuffle on each group's
	// indices in (modulation, SNR) order.
	assert.Equal(t, []int{2521, 2209, 3417, 1009, 1749, 778, 1406, 1519}, p.Test[:8])
	assert.Equal(t, []int{6085, 5171, 4754, 4493, 4519, 8187, 4469, 5573}, p.Test[410:418])
	assert.Equal(t, []int{10150, 9007, 10327, 10792, 9993}, p.Test[820:825])
	assert.Equal(t, []int{2122, 2799, 3957, 365}, p.Train[:4])

	last := len(p.Test) - 410
	assert.Equal(t, []int{2553771, 2552312, 2552865, 2552333, 2554700}, p.Test[last:last+5])
	assert.Equal(t, 2553958, p.Test[len(p.Test)-1])
	assert.False(t, sort.IntsAreSorted(p.Test[:410]), "test indices keep the shuffled order")
}

func TestWriteNPYShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.npy")
	values := make([]float32, 3*4*2)
	for i := range values {
		values[i] = float32(i) / 2
	}
	require.NoError(t, dataset.WriteNPY(path, []int{3, 4, 2}, values))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := npy.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, "<f4", r.Header.Descr.Type)
	assert.Equal(t, []int{3, 4, 2}, r.Header.Descr.Shape)
	assert.False(t, r.Header.Descr.Fortran)

	var got []float32
	require.NoError(t, r.Read(&got))
	assert.Equal(t, values, got)
}

func TestWriteNPYRejectsShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.npy")
	err := dataset.WriteNPY(path, []int{2, 3}, make([]int64, 5))
	assert.ErrorIs(t, err, dataset.ErrUnsupportedLayout)
	assert.NoFileExists(t, path)
}

func TestSplitMinTrainSNRKeepsTest(t *testing.T) {
	o := smallLayout()
	all, err := dataset.Split(o)
	require.NoError(t, err)

	o.MinTrainSNRIndex = 2
	filtered, err := dataset.Split(o)
	require.NoError(t, err)

	assert.Equal(t, all.Test, filtered.Test)
	nTest := o.TestPerGroup()
	assert.Len(t, filtered.Train, o.Mods*2*(o.FramesPerGroup-nTest))
	for _, i := range filtered.Train {
		_, snr := o.Group(i)
		assert.GreaterOrEqual(t, snr, 2)
	}
}

func TestSplitTestPerGroupRoundsUp(t *testing.T) {
	o := smallLayout()
	assert.Equal(t, 2, o.TestPerGroup())
	assert.Equal(t, 410, dataset.DefaultSplitOptions().TestPerGroup())
}

func TestSplitValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*dataset.SplitOptions)
	}{
		{"zero frames", func(o *dataset.SplitOptions) { o.FramesPerGroup = 0 }},
		{"fraction one", func(o *dataset.SplitOptions) { o.TestFraction = 1 }},
		{"fraction zero", func(o *dataset.SplitOptions) { o.TestFraction = 0 }},
		{"snr filter too high", func(o *dataset.SplitOptions) { o.MinTrainSNRIndex = o.SNRs }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := dataset.DefaultSplitOptions()
			tt.modify(&o)
			_, err := dataset.Split(o)
			assert.ErrorIs(t, err, dataset.ErrInvalidSplit)
		})
	}
}

func TestDatasetSplitChecksSize(t *testing.T) {
	ds := openSynthetic(t, smallLayout(), 8)

	_, err := ds.Split(dataset.DefaultSplitOptions())
	require.ErrorIs(t, err, dataset.ErrInvalidSplit)

	p, err := ds.Split(smallLayout())
	require.NoError(t, err)
	assert.Len(t, p.Test, 3*4*2)
}

func TestBatches(t *testing.T) {
	ds := openSynthetic(t, smallLayout(), 8)
	indices := []int{5, 70, 200, 3, 150}

	it, err := ds.Batches(indices, 2, dataset.WithParallel(parallel.Sequential()))
	require.NoError(t, err)
	assert.Equal(t, 3, it.NumBatches())

	var got []int
	for it.Next() {
		b := it.Batch()
		shape := b.X.Shape()
		require.Equal(t, []int{b.Size(), 2, 8}, []int(shape))
		x := b.X.AsFloat32()
		for k, i := range b.Indices {
			frame, mod, snr, err := ds.Item(i)
			require.NoError(t, err)
			assert.Equal(t, mod, b.Labels[k])
			assert.Equal(t, snr, b.SNRs[k])
			assert.Equal(t, frame[0], x[k*16:k*16+8])
			assert.Equal(t, frame[1], x[k*16+8:k*16+16])
		}
		got = append(got, b.Indices...)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, indices, got)
}

func TestBatchesShuffle(t *testing.T) {
	ds := openSynthetic(t, smallLayout(), 4)
	indices := make([]int, 40)
	for i := range indices {
		indices[i] = i
	}

	collect := func(seed uint32) []int {
		it, err := ds.Batches(indices, 7, dataset.WithShuffle(seed))
		require.NoError(t, err)
		var out []int
		for it.Next() {
			out = append(out, it.Batch().Indices...)
		}
		require.NoError(t, it.Err())
		return out
	}

	a := collect(1)
	assert.Equal(t, a, collect(1))
	assert.NotEqual(t, indices, a)

	sorted := append([]int(nil), a...)
	sort.Ints(sorted)
	assert.Equal(t, indices, sorted)
}

func TestBatchesRejectsBadInput(t *testing.T) {
	ds := openSynthetic(t, smallLayout(), 4)

	_, err := ds.Batches([]int{0}, 0)
	require.Error(t, err)
	_, err = ds.Batches([]int{ds.Len()}, 4)
	require.ErrorIs(t, err, dataset.ErrIndexOutOfRange)
}
