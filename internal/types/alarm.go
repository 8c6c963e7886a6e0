package types

import "fmt"

type Alarm struct {
	Ref       string `json:"ref"`
	IsSet     bool   `json:"is_set"`
	Timestamp int64  `json:"utc,omitempty"`
}

func NewAlarm(ref string) *Alarm { return &Alarm{Ref: ref} }

func (a *Alarm) Set()                  { a.IsSet = true }
func (a *Alarm) Reset()                { a.IsSet = false }
func (a *Alarm) SetTimestamp(ts int64) { a.Timestamp = ts }

func (a *Alarm) Clone() *Alarm {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func (a *Alarm) String() string {
	return fmt.Sprintf("Alarm(%s set=%t utc=%d)", a.Ref, a.IsSet, a.Timestamp)
}
