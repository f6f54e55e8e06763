package wxpay

import "github.com/rs/zerolog/log"

const codeSuccess = "SUCCESS"

// ParseResponseResult accepts a decoded response only when both status
// codes are SUCCESS and the embedded signature matches. return_code is
// always checked before result_code, and the signature is checked only on
// business success.
func ParseResponseResult(fields map[string]string, key string) (map[string]string, error) {
	if len(fields) == 0 || fields["return_code"] == "" {
		return nil, argErrorf("invalid response: missing return_code")
	}

	if fields["return_code"] != codeSuccess {
		return nil, &PaymentAPIError{Message: fields["return_msg"]}
	}
	if fields["result_code"] != codeSuccess {
		msg := fields["err_code_des"]
		if msg == "" {
			msg = fields["return_msg"]
		}
		return nil, &PaymentAPIError{Code: fields["err_code"], Message: msg}
	}

	if fields[SignField] == "" {
		return nil, &SignatureVerificationError{Reason: "sign field missing"}
	}
	if !VerifySign(fields, key) {
		log.Warn().
			Str("appid", fields["appid"]).
			Str("mch_id", fields["mch_id"]).
			Str("out_trade_no", fields["out_trade_no"]).
			Msg("[WXPAY] Signature mismatch on successful response")
		return nil, &SignatureVerificationError{Reason: "sign mismatch"}
	}

	return fields, nil
}

// NotifyReply renders the acknowledgement the platform expects in reply to
// a payment notification.
func NotifyReply(ok bool, msg string) []byte {
	p := NewParams()
	if ok {
		p.Set("return_code", codeSuccess).Set("return_msg", "OK")
	} else {
		p.Set("return_code", "FAIL").Set("return_msg", msg)
	}
	return EncodeXML(p)
}
