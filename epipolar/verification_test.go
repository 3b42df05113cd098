package epipolar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/naktamello/rtabmap/correspondence"
)

func testConfig() *VerificationConfig {
	return &VerificationConfig{
		MatchCountMin:    8,
		RansacThreshold:  1.0,
		RansacConfidence: 0.99,
	}
}

// singletonWords wraps each point as its own word, so the unique-only policy
// matches index i of one view to index i of the other.
func singletonWords(pts []r2.Point) correspondence.Words {
	words := make(correspondence.Words, len(pts))
	for i, pt := range pts {
		words[i] = []r2.Point{pt}
	}
	return words
}

func TestVerifySkipsEstimationBelowMatchCount(t *testing.T) {
	logger := golog.NewTestLogger(t)
	verifier := NewVerifier(testConfig(), logger)
	calls := 0
	verifier.estimate = func(pairs []correspondence.Pair, threshold, confidence float64) (*mat.Dense, []bool) {
		calls++
		return ZeroFundamentalMatrix(), make([]bool, len(pairs))
	}

	wordsA := singletonWords([]r2.Point{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}})
	wordsB := singletonWords([]r2.Point{{X: 4, Y: 4}, {X: 5, Y: 5}, {X: 6, Y: 6}})
	test.That(t, verifier.Verify(wordsA, wordsB), test.ShouldBeFalse)
	test.That(t, calls, test.ShouldEqual, 0)

	test.That(t, verifier.Verify(nil, wordsB), test.ShouldBeFalse)
	test.That(t, verifier.Verify(wordsA, nil), test.ShouldBeFalse)
	test.That(t, calls, test.ShouldEqual, 0)
}

func TestVerifyRejectsOnEstimationFailure(t *testing.T) {
	logger := golog.NewTestLogger(t)
	verifier := NewVerifier(testConfig(), logger)
	calls := 0
	verifier.estimate = func(pairs []correspondence.Pair, threshold, confidence float64) (*mat.Dense, []bool) {
		calls++
		return ZeroFundamentalMatrix(), make([]bool, len(pairs))
	}

	k := testIntrinsics().GetCameraMatrix()
	pts1, pts2 := sceneProjections(k, scenePose())
	test.That(t, verifier.Verify(singletonWords(pts1), singletonWords(pts2)), test.ShouldBeFalse)
	test.That(t, calls, test.ShouldEqual, 1)
}

func TestVerifyRejectsBelowInlierCount(t *testing.T) {
	logger := golog.NewTestLogger(t)
	verifier := NewVerifier(testConfig(), logger)
	verifier.estimate = func(pairs []correspondence.Pair, threshold, confidence float64) (*mat.Dense, []bool) {
		f := ZeroFundamentalMatrix()
		f.Set(0, 1, 1)
		status := make([]bool, len(pairs))
		for i := 0; i < len(status) && i < 7; i++ {
			status[i] = true
		}
		return f, status
	}

	k := testIntrinsics().GetCameraMatrix()
	pts1, pts2 := sceneProjections(k, scenePose())
	test.That(t, verifier.Verify(singletonWords(pts1), singletonWords(pts2)), test.ShouldBeFalse)
}

func TestVerifyAcceptsConsistentViews(t *testing.T) {
	logger := golog.NewTestLogger(t)
	verifier := NewVerifier(testConfig(), logger)

	k := testIntrinsics().GetCameraMatrix()
	pts1, pts2 := sceneProjections(k, scenePose())
	test.That(t, verifier.Verify(singletonWords(pts1), singletonWords(pts2)), test.ShouldBeTrue)
}

func TestVerifyRejectsAmbiguousWords(t *testing.T) {
	logger := golog.NewTestLogger(t)
	verifier := NewVerifier(testConfig(), logger)

	// every word is ambiguous: the match count clears the floor but no pair
	// is emitted, so estimation fails with the zero matrix
	wordsA := make(correspondence.Words)
	wordsB := make(correspondence.Words)
	for i := 0; i < 6; i++ {
		wordsA[i] = []r2.Point{{X: float64(i), Y: 0}, {X: float64(i), Y: 1}}
		wordsB[i] = []r2.Point{{X: float64(i), Y: 2}, {X: float64(i), Y: 3}}
	}
	count, pairs := correspondence.FindPairsUnique(wordsA, wordsB)
	test.That(t, count, test.ShouldEqual, 12)
	test.That(t, pairs, test.ShouldBeEmpty)

	test.That(t, verifier.Verify(wordsA, wordsB), test.ShouldBeFalse)
}

func TestLoadVerificationConfig(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "verification.json")
	content := []byte(`{"match_count_min": 20, "ransac_threshold_px": 3.0, "ransac_confidence": 0.99}`)
	test.That(t, os.WriteFile(path, content, 0o600), test.ShouldBeNil)

	cfg, err := LoadVerificationConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.MatchCountMin, test.ShouldEqual, 20)
	test.That(t, cfg.RansacThreshold, test.ShouldEqual, 3.0)
	test.That(t, cfg.RansacConfidence, test.ShouldEqual, 0.99)

	_, err = LoadVerificationConfig(filepath.Join(tempDir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
