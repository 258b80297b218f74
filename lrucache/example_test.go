/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"fmt"
	"log"
	"time"
)

func Example() {
	type User struct {
		ID   int
		Name string
	}

	// Make, configure and register Prometheus metrics collector.
	metricsCollector := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{Namespace: "myservice"})
	metricsCollector.MustRegister()
	defer metricsCollector.Unregister()

	// Make LRU cache for storing maximum 1000 entries,
	// entries expire after 10 minutes or if they were not accessed during 5 minutes.
	cache, err := NewWithOpts[string, User](1000, metricsCollector, Options[string, User]{
		DefaultTTL:        10 * time.Minute,
		ExpireAfterAccess: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	cache.Add("user:1", User{1, "John"})

	if user, found := cache.Get("user:1"); found {
		fmt.Printf("%d, %s\n", user.ID, user.Name)
	}

	// Output:
	// 1, John
}
