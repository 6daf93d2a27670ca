package domain

import "context"

type Operator struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Name is the value recorded on sales and payments.
func (o Operator) Name() string {
	if o.DisplayName != "" {
		return o.DisplayName
	}
	return o.Username
}

type operatorContextKey struct{}

func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorContextKey{}).(Operator)
	return op, ok
}

// SystemOperator is recorded when no operator is attached to the context.
const SystemOperator = "system"

func OperatorName(ctx context.Context) string {
	if op, ok := OperatorFromContext(ctx); ok && op.Name() != "" {
		return op.Name()
	}
	return SystemOperator
}
