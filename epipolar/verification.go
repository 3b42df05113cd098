package epipolar

import (
	"encoding/json"
	"os"

	"github.com/edaniels/golog"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/naktamello/rtabmap/correspondence"
)

// VerificationConfig contains the parameters of the epipolar consistency
// check between two views.
type VerificationConfig struct {
	// MatchCountMin is the rejection floor for both raw matches and RANSAC
	// inliers.
	MatchCountMin int `json:"match_count_min"`
	// RansacThreshold is the maximum pixel distance from the epipolar line
	// for a pair to be called an inlier.
	RansacThreshold float64 `json:"ransac_threshold_px"`
	// RansacConfidence is the desired probability of finding the right model.
	RansacConfidence float64 `json:"ransac_confidence"`
}

// LoadVerificationConfig loads a verification configuration from a json file.
func LoadVerificationConfig(path string) (*VerificationConfig, error) {
	var config VerificationConfig
	configFile, err := os.Open(path) //nolint:gosec
	defer utils.UncheckedErrorFunc(configFile.Close)
	if err != nil {
		return nil, err
	}
	jsonParser := json.NewDecoder(configFile)
	err = jsonParser.Decode(&config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// estimatorFunc fits a fundamental matrix to matched pairs; a Verifier's
// estimator is swappable so tests can observe whether estimation ran.
type estimatorFunc func(pairs []correspondence.Pair, threshold, confidence float64) (*mat.Dense, []bool)

// Verifier decides whether two views are geometrically consistent under the
// epipolar constraint. It is stateless across calls and safe for concurrent
// use.
type Verifier struct {
	cfg      *VerificationConfig
	estimate estimatorFunc
	logger   golog.Logger
}

// NewVerifier returns a Verifier configured with cfg.
func NewVerifier(cfg *VerificationConfig, logger golog.Logger) *Verifier {
	return &Verifier{
		cfg:      cfg,
		estimate: FindFundamentalFromPairs,
		logger:   logger,
	}
}

// Verify matches the visual words of the two views with the unique-only
// policy, estimates the fundamental matrix over the matched pairs and accepts
// the views when both the matched count and the inlier count reach the
// configured minimum. A rejection is a normal outcome, not an error.
func (v *Verifier) Verify(wordsA, wordsB correspondence.Words) bool {
	if wordsA == nil || wordsB == nil {
		return false
	}
	count, pairs := correspondence.FindPairsUnique(wordsA, wordsB)
	if count < v.cfg.MatchCountMin {
		return false
	}

	f, status := v.estimate(pairs, v.cfg.RansacThreshold, v.cfg.RansacConfidence)
	if !IsFundamentalValid(f) {
		v.logger.Debugf("no consistent fundamental matrix found for %d pairs", len(pairs))
		return false
	}
	inliers := 0
	for _, ok := range status {
		if ok {
			inliers++
		}
	}
	if inliers < v.cfg.MatchCountMin {
		v.logger.Debugf("epipolar constraint failed: not enough inliers (%d/%d), min is %d",
			inliers, len(pairs), v.cfg.MatchCountMin)
		return false
	}
	v.logger.Debugf("inliers = %d/%d", inliers, len(pairs))
	return true
}
