// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package funcutil

import "fmt"

// Optional is a value of type T that may be absent. The zero value is none.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns an optional holding x.
func Some[T any](x T) Optional[T] {
	return Optional[T]{value: x, ok: true}
}

// None returns the absent optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// IsSome returns true when the optional holds a value.
func (o Optional[T]) IsSome() bool { return o.ok }

// IsNone returns true when the optional is absent.
func (o Optional[T]) IsNone() bool { return !o.ok }

// Value returns the held value; panics on none.
func (o Optional[T]) Value() T {
	if !o.ok {
		panic("Value called on none")
	}
	return o.value
}

func (o Optional[T]) String() string {
	if !o.ok {
		return "none"
	}
	return fmt.Sprintf("%v", o.value)
}

// MapOption applies f to the held value, propagating none.
func MapOption[T any, S any](x Optional[T], f func(T) S) Optional[S] {
	if x.ok {
		return Some(f(x.value))
	}
	return None[S]()
}
