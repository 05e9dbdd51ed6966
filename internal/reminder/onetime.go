package reminder

import "time"

// OneTime fires once at Date and is consumed afterwards.
type OneTime struct {
	Date time.Time
}

func NewOneTime(date time.Time) (*OneTime, error) {
	o := &OneTime{Date: date}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OneTime) Kind() Kind { return KindOneTime }

func (o *OneTime) Validate() error {
	if o.Date.IsZero() {
		return configErr("date", "required")
	}
	return nil
}

func (o *OneTime) Candidates(time.Time) []time.Time { return []time.Time{o.Date} }

func (o *OneTime) clone() Mode {
	cp := *o
	return &cp
}
