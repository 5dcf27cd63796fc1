// Package route finds conversion routes over a catalog.
//
// The default search is breadth-first: the route with the fewest hops wins and
// ties go to the neighbour declared first in the catalog. StrategyBestQuality
// swaps in a priority-queue search on cumulative quality weight behind the
// same FindRoute contract. Routes never cross domains and never exceed the
// resolver's hop limit.
package route
