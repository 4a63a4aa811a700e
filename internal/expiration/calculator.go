package expiration

import "time"

// Calculator derives expiration dates from a rule table.
type Calculator struct {
	rules Rules
}

// NewCalculator builds a calculator over rules.
func NewCalculator(rules Rules) *Calculator {
	return &Calculator{rules: rules}
}

// Rules returns the table the calculator was built with.
func (c *Calculator) Rules() Rules {
	return c.rules
}

// ExpirationFor returns override unchanged when it is set. Otherwise it adds
// the jurisdiction's validity period to submitDate in calendar days.
func (c *Calculator) ExpirationFor(submitDate time.Time, jurisdiction string, override *time.Time) time.Time {
	if override != nil {
		return *override
	}
	return AddDays(Date(submitDate), c.rules.DaysValid(jurisdiction))
}
