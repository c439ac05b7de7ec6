package strategy

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// ToJSONSchema converts a struct to a JSON schema
func ToJSONSchema[T any](t T) (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	schema := r.Reflect(t)

	jsonSchemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}

	return string(jsonSchemaBytes), nil
}

// ParamsSchema returns the JSON schema of the params accepted by kind.
func ParamsSchema(kind types.StrategyKind) (string, error) {
	switch kind {
	case types.StrategyTrendFollowing:
		return ToJSONSchema(DefaultTrendFollowingConfig())
	case types.StrategyMeanReversion:
		return ToJSONSchema(DefaultMeanReversionConfig())
	case types.StrategyBreakout:
		return ToJSONSchema(DefaultBreakoutConfig())
	default:
		return "", errors.Newf(errors.ErrCodeUnknownStrategy, "unknown strategy %q", kind)
	}
}
