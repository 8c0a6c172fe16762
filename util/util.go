package util

import (
	"sort"

	"github.com/snowdag/snowdag/util/set"
)

func Keys[K comparable, V any](m map[K]V, filter ...func(k K) bool) []K {
	ret := make([]K, 0, len(m))
	if len(filter) == 0 {
		for k := range m {
			ret = append(ret, k)
		}
	} else {
		for k := range m {
			if filter[0](k) {
				ret = append(ret, k)
			}
		}
	}
	return ret
}

func SortKeys[K comparable, V any](m map[K]V, less func(k1, k2 K) bool) []K {
	ret := Keys(m)
	sort.Slice(ret, func(i, j int) bool {
		return less(ret[i], ret[j])
	})
	return ret
}

func KeySet[K comparable, V any](m map[K]V, filter ...func(k K) bool) set.Set[K] {
	ret := set.New[K]()
	if len(filter) == 0 {
		for k := range m {
			ret.Insert(k)
		}
	} else {
		for k := range m {
			if filter[0](k) {
				ret.Insert(k)
			}
		}
	}
	return ret
}

func ValuesFiltered[K comparable, V any](m map[K]V, filter func(v V) bool) []V {
	ret := make([]V, 0, len(m))
	for _, v := range m {
		if filter(v) {
			ret = append(ret, v)
		}
	}
	return ret
}

func ForEachUniquePair[T any](sl []T, fun func(a1, a2 T) bool) {
	for i, r1 := range sl {
		for _, r2 := range sl[i+1:] {
			if !fun(r1, r2) {
				return
			}
		}
	}
}
