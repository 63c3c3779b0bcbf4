package sharedstate

import "encoding/json"

// SetJSON marshals v and stores it under key.
func (m *Map) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.Set(key, data)
	return nil
}

// GetJSON unmarshals the value stored under key into out, returning whether
// the key was present.
func (m *Map) GetJSON(key string, out any) (bool, error) {
	data, ok := m.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, err
	}
	return true, nil
}
