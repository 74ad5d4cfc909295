package smoke

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"

	"github.com/fieldwork-io/fieldwork/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	profileTypeDivisor = 5
)

// Constants for generated answer ranges.
const (
	heavyBuyerMin    = 5
	heavyBuyerRange  = 10
	casualBuyerMin   = 2
	casualBuyerRange = 3
	rareBuyerRange   = 2
)

// Constants for profile type cases.
const (
	caseBilingualHeavyBuyer = 0
	caseEnglishCasualBuyer  = 1
	caseArabicCasualBuyer   = 2
	caseEnglishRareBuyer    = 3
	caseNoMatchLanguage     = 4
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func getRandomInt(max int64) int64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(max))
	return n.Int64()
}

// generateParticipants creates varied applicant profiles so the run exercises
// every screening outcome: approvals, rejections and manual review.
func generateParticipants(ctx context.Context, config *Config, stats *Stats) []participant {
	logger.Get().Info(ctx, "generating participants", logger.Int("count", config.NumParticipants))

	participants := make([]participant, config.NumParticipants)
	for i := range participants {
		participants[i] = generateSingleParticipant()
	}

	stats.ParticipantsGenerated = len(participants)
	return participants
}

// generateSingleParticipant creates one profile with a varied distribution of
// languages and purchase counts.
func generateSingleParticipant() participant {
	id := uuid.New().String()

	var languages []interface{}
	var purchases int64

	switch getRandomInt(profileTypeDivisor) {
	case caseBilingualHeavyBuyer:
		languages = []interface{}{"English", "Arabic"}
		purchases = heavyBuyerMin + getRandomInt(heavyBuyerRange)
	case caseEnglishCasualBuyer:
		languages = []interface{}{"English"}
		purchases = casualBuyerMin + getRandomInt(casualBuyerRange)
	case caseArabicCasualBuyer:
		languages = []interface{}{"Arabic", "French"}
		purchases = casualBuyerMin + getRandomInt(casualBuyerRange)
	case caseEnglishRareBuyer:
		languages = []interface{}{"English"}
		purchases = getRandomInt(rareBuyerRange)
	case caseNoMatchLanguage:
		languages = []interface{}{"German"}
		purchases = casualBuyerMin + getRandomInt(casualBuyerRange)
	}

	return participant{
		ID: id,
		Profile: map[string]interface{}{
			"languages": languages,
			"country":   pickCountry(),
		},
		Answers: map[string]interface{}{
			"purchases30d": float64(purchases),
		},
	}
}

func pickCountry() string {
	countries := []string{"US", "GB", "DE", "AE", "EG", "FR"}
	return countries[getRandomInt(int64(len(countries)))]
}

// transcriptLines feed the generated session transcripts.
var transcriptLines = []string{
	"The coupon field was impossible to find during checkout.",
	"I expected the back button to keep my cart but it emptied it.",
	"Search results felt relevant but the filters reset every time.",
	"Signing up with my phone number failed twice before it worked.",
	"The delivery estimate changed after I had already paid.",
}

func pickTranscript() string {
	return transcriptLines[getRandomInt(int64(len(transcriptLines)))]
}
