// Command verify runs the epipolar consistency check between two views whose
// visual words are stored as json files.
package main

import (
	"encoding/json"
	"flag"
	"os"

	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"github.com/naktamello/rtabmap/correspondence"
	"github.com/naktamello/rtabmap/epipolar"
)

var logger = golog.NewLogger("epipolar-verify")

// loadWords reads a view's word id to image points mapping from a json file.
func loadWords(path string) (correspondence.Words, error) {
	var words correspondence.Words
	wordsFile, err := os.Open(path) //nolint:gosec
	defer utils.UncheckedErrorFunc(wordsFile.Close)
	if err != nil {
		return nil, err
	}
	jsonParser := json.NewDecoder(wordsFile)
	if err := jsonParser.Decode(&words); err != nil {
		return nil, err
	}
	return words, nil
}

func main() {
	cfgPath := flag.String("config", "", "path to a verification config json file")
	flag.Parse()
	if flag.NArg() != 2 {
		logger.Fatal("usage: verify [-config config.json] wordsA.json wordsB.json")
	}

	cfg := &epipolar.VerificationConfig{
		MatchCountMin:    8,
		RansacThreshold:  3.0,
		RansacConfidence: 0.99,
	}
	if *cfgPath != "" {
		var err error
		cfg, err = epipolar.LoadVerificationConfig(*cfgPath)
		if err != nil {
			logger.Fatal(err)
		}
	}

	wordsA, err := loadWords(flag.Arg(0))
	if err != nil {
		logger.Fatal(err)
	}
	wordsB, err := loadWords(flag.Arg(1))
	if err != nil {
		logger.Fatal(err)
	}

	verifier := epipolar.NewVerifier(cfg, logger)
	if !verifier.Verify(wordsA, wordsB) {
		logger.Info("views rejected")
		os.Exit(1)
	}
	logger.Info("views are geometrically consistent")
}
