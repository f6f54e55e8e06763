package wxpay

import "strconv"

type param struct {
	name    string
	value   string
	numeric bool
}

// Params is an insertion-ordered set of request fields. Integer fields are
// tracked so the XML encoder can leave them bare.
type Params struct {
	fields []param
}

// NewParams returns an empty field set.
func NewParams() *Params {
	return &Params{}
}

// Set adds or replaces a string field.
func (p *Params) Set(name, value string) *Params {
	p.put(param{name: name, value: value})
	return p
}

// SetInt adds or replaces an integer field.
func (p *Params) SetInt(name string, value int64) *Params {
	p.put(param{name: name, value: strconv.FormatInt(value, 10), numeric: true})
	return p
}

// SetIfNotEmpty adds a string field only when value is non-empty.
func (p *Params) SetIfNotEmpty(name, value string) *Params {
	if value != "" {
		p.Set(name, value)
	}
	return p
}

func (p *Params) put(f param) {
	for i := range p.fields {
		if p.fields[i].name == f.name {
			p.fields[i] = f
			return
		}
	}
	p.fields = append(p.fields, f)
}

// Get returns the value of a field.
func (p *Params) Get(name string) (string, bool) {
	for _, f := range p.fields {
		if f.name == name {
			return f.value, true
		}
	}
	return "", false
}

// Del removes a field.
func (p *Params) Del(name string) {
	for i, f := range p.fields {
		if f.name == name {
			p.fields = append(p.fields[:i], p.fields[i+1:]...)
			return
		}
	}
}

// Len returns the number of fields.
func (p *Params) Len() int {
	return len(p.fields)
}

// Map flattens the fields into a plain map.
func (p *Params) Map() map[string]string {
	m := make(map[string]string, len(p.fields))
	for _, f := range p.fields {
		m[f.name] = f.value
	}
	return m
}

// Sign computes the signature over the current fields and appends it as
// the last field under name, replacing any previous value.
func (p *Params) Sign(name, key string) string {
	p.Del(name)
	sign := Sign(p.Map(), key)
	p.Set(name, sign)
	return sign
}
