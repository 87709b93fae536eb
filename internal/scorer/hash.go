package scorer

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/sells-group/property-scorer/internal/model"
)

// RulesHash returns a short hex fingerprint of the rules, stored with every
// score so rescoring can skip properties scored under the same rules.
func RulesHash(r model.InvestorRules) string {
	// json.Marshal sorts map keys, so equal rules hash equally.
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}
