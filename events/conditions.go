package events

import (
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/retry"
	"eve.evalgo.org/operation/subscription"
)

// ConnectedCondition is a RunCondition satisfied while the observer
// reports a connected network; it signals a change on every status
// transition. It backs automatic re-running when connectivity returns.
func ConnectedCondition(observer NetworkStatusObserver) retry.RunCondition {
	return retry.FuncCondition{
		Satisfied: func(opcontext.Context) bool {
			return observer.CurrentStatus() == NetworkConnected
		},
		OnSubscribe: func(_ opcontext.Context, onChange func()) *subscription.Subscription {
			return observer.Subscribe(func(NetworkStatus) { onChange() })
		},
	}
}

// NotificationCondition is a RunCondition that is always satisfied and
// signals a change on every post of name; it backs refetch-on-
// notification modifiers.
func NotificationCondition(source NotificationSource, name string) retry.RunCondition {
	return retry.FuncCondition{
		OnSubscribe: func(_ opcontext.Context, onChange func()) *subscription.Subscription {
			return source.Subscribe(name, func(Notification) { onChange() })
		},
	}
}
