package reconcile

import (
	"encoding/base64"
	"strings"

	"github.com/huntyio/membership/internal/pkg/hubspot"
	"github.com/huntyio/membership/internal/pkg/treli"
)

const (
	contactTypePro   = "hunty pro"
	contactTypeBasic = "Hunty"
)

func approvedProperties(item, scope string) hubspot.Properties {
	return hubspot.Properties{
		"user_type":         contactTypePro,
		"active_huntypro":   true,
		"subscription_name": item,
		"ambiente":          scope,
	}
}

func canceledProperties(scope string) hubspot.Properties {
	return hubspot.Properties{
		"user_type":         contactTypeBasic,
		"active_huntypro":   false,
		"subscription_name": "subscription canceled",
		"ambiente":          scope,
	}
}

// newContactProperties is the full contact written for a user created by a
// payment.
func newContactProperties(userID string, b treli.Billing, item, scope string) hubspot.Properties {
	email := strings.TrimSpace(b.Email)
	return hubspot.Properties{
		"user_id":           userID,
		"city":              b.City,
		"country":           b.Country,
		"user_type":         contactTypePro,
		"firstname":         b.FirstName,
		"lastname":          b.LastName,
		"phone":             b.PhoneCountryCode + " " + b.Phone,
		"email":             email,
		"account_key":       base64.StdEncoding.EncodeToString([]byte(email)),
		"subscription_name": item,
		"active_huntypro":   true,
		"ambiente":          scope,
	}
}
