package transport

import "cwship/internal/model"

// Resolver 는 레코드로부터 log group / log stream 이름을 결정한다.
//
// 상수 이름(Static)과 레코드 함수(Func) 두 가지 형태를 모두 같은 방식으로
// 다룬다. 어느 쪽이든 Resolve 는 submit 시점에 호출된다.
// zero value 는 빈 문자열을 돌려주는 Static("") 과 같다.
type Resolver struct {
	constant string
	fn       func(*model.Record) string
}

// Static 은 항상 같은 이름을 돌려주는 Resolver 를 만든다.
func Static(name string) Resolver {
	return Resolver{constant: name}
}

// Func 는 레코드마다 fn 을 호출하는 Resolver 를 만든다.
// fn 은 같은 레코드에 대해 항상 같은 값을 돌려줘야 한다.
func Func(fn func(*model.Record) string) Resolver {
	return Resolver{fn: fn}
}

// Field 는 Record.Fields[key] 문자열을 이름으로 쓰고,
// 값이 없으면 fallback 을 돌려주는 Resolver 다.
// HTTP 수집기처럼 호출자가 레코드에 목적지를 실어 보내는 경우에 쓴다.
func Field(key, fallback string) Resolver {
	return Func(func(r *model.Record) string {
		if v := r.Field(key); v != "" {
			return v
		}
		return fallback
	})
}

// Resolve 는 레코드에 대한 이름을 돌려준다.
func (r Resolver) Resolve(rec *model.Record) string {
	if r.fn != nil {
		return r.fn(rec)
	}
	return r.constant
}

// IsZero 는 Resolver 가 설정되지 않았는지 반환한다.
func (r Resolver) IsZero() bool {
	return r.fn == nil && r.constant == ""
}
