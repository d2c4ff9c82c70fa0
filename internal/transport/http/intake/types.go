package intake

// Envelope is the fixed webhook response shape. The endpoint always answers
// HTTP 200 so a rejection never looks like a delivery failure to the alert
// source; success=false carries the reason instead.
type Envelope struct {
	Success  bool    `json:"success"`
	Message  string  `json:"message"`
	OrderID  *string `json:"order_id"`
	Response any     `json:"response"`
}

func accepted(message, id string) Envelope {
	env := Envelope{Success: true, Message: message}
	if id != "" {
		env.OrderID = &id
	}
	return env
}

func rejected(message string) Envelope {
	return Envelope{Success: false, Message: message}
}
