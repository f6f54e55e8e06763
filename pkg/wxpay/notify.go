package wxpay

// Notify validates an asynchronous payment notification with the same two
// phases as any API response. Callers must not mark an order paid unless
// this returns no error.
func (g *Gateway) Notify(fields map[string]string) (map[string]string, error) {
	return ParseResponseResult(fields, g.cfg.Key)
}

// ParseNotify decodes a raw notification body and validates it.
func (g *Gateway) ParseNotify(body []byte) (map[string]string, error) {
	fields, err := DecodeXML(body)
	if err != nil {
		return nil, err
	}
	return g.Notify(fields)
}

// VerifyData checks only the signature of fields.
func (g *Gateway) VerifyData(fields map[string]string) (bool, error) {
	if fields[SignField] == "" {
		return false, argErrorf("sign field missing or empty")
	}
	return VerifySign(fields, g.cfg.Key), nil
}
