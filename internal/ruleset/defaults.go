package ruleset

// Default returns the reference ruleset used when no override is configured.
func Default() *Ruleset {
	return &Ruleset{
		BasePoints: map[string]int{
			PointsSaleCompleted:        10,
			PointsProductSold:          2,
			PointsCustomerSatisfaction: 5,
			PointsTrainingCompleted:    20,
			PointsPerfectAttendance:    15,
		},
		Multipliers: map[string]float64{
			MultiplierWeekendSale:    1.5,
			MultiplierHolidaySale:    2.0,
			MultiplierPremiumProduct: 1.3,
			MultiplierNewCustomer:    1.2,
			MultiplierRepeatCustomer: 1.1,
		},
		Penalties: map[string]int{
			PenaltyLateArrival:       -5,
			PenaltyCustomerComplaint: -10,
			PenaltyProductReturn:     -3,
			PenaltyMissedTarget:      -15,
			PenaltyTrainingMissed:    -10,
			PenaltyNoSalesDaily:      -5,
		},
		DailyGoals: DailyGoals{
			Targets: map[string]float64{
				GoalSalesCount:           5,
				GoalSalesAmount:          1000,
				GoalProductsSold:         10,
				GoalCustomerSatisfaction: 3,
			},
			CompletionBonus: 10,
		},
		AdminConfig: AdminConfig{
			CooldownHours:      20,
			MaxDailyAdjustment: 100,
			AutoPenaltyNoSales: true,
			ManagerBadgeRequirements: ManagerBadgeRequirements{
				TotalSalesThreshold: 50000,
				SalesCountThreshold: 200,
			},
		},
		AvatarLevels: []AvatarLevel{
			{Level: 1, Name: "Rookie", RequiredPoints: 0, AvatarURL: "/avatars/rookie.png", Benefits: []string{"Access to daily goals"}},
			{Level: 2, Name: "Apprentice", RequiredPoints: 100, AvatarURL: "/avatars/apprentice.png", Benefits: []string{"Profile frame"}},
			{Level: 3, Name: "Seller", RequiredPoints: 300, AvatarURL: "/avatars/seller.png", Benefits: []string{"Leaderboard highlight"}},
			{Level: 4, Name: "Expert", RequiredPoints: 600, AvatarURL: "/avatars/expert.png", Benefits: []string{"Priority shift choice"}},
			{Level: 5, Name: "Master", RequiredPoints: 1000, AvatarURL: "/avatars/master.png", Benefits: []string{"Extra break", "Mentor role"}},
			{Level: 6, Name: "Legend", RequiredPoints: 2000, AvatarURL: "/avatars/legend.png", Benefits: []string{"Hall of fame", "Monthly bonus"}},
		},
		Badges: []Badge{
			{Type: "bronze", Name: "Bronze Seller", Description: "Reached 100 points", IconURL: "/badges/bronze.png", RequiredPoints: 100, IsActive: true},
			{Type: "silver", Name: "Silver Seller", Description: "Reached 300 points", IconURL: "/badges/silver.png", RequiredPoints: 300, IsActive: true},
			{Type: "gold", Name: "Gold Seller", Description: "Reached 600 points", IconURL: "/badges/gold.png", RequiredPoints: 600, IsActive: true},
			{Type: "platinum", Name: "Platinum Seller", Description: "Reached 1000 points", IconURL: "/badges/platinum.png", RequiredPoints: 1000, IsActive: true},
			{Type: "diamond", Name: "Diamond Seller", Description: "Reached 2000 points", IconURL: "/badges/diamond.png", RequiredPoints: 2000, IsActive: true},
			{
				Type:           "store_leader",
				Name:           "Store Leader",
				Description:    "Manager with outstanding lifetime sales",
				IconURL:        "/badges/store_leader.png",
				RequiredPoints: 0,
				IsActive:       true,
				IsManagerOnly:  true,
				ManagerRequirements: &ManagerRequirements{
					TotalSales: 50000,
					SalesCount: 200,
				},
			},
		},
		Trophies: []Trophy{
			{
				Name:         "Monthly Champion",
				Description:  "More than 10,000 in sales in a single month",
				Category:     CategoryMonthly,
				IconURL:      "/trophies/monthly_champion.png",
				PointsReward: 100,
				Criteria:     []Criterion{{Type: CriterionSalesAmount, Operator: OperatorGreaterThan, Value: 10000, Period: PeriodMonthly}},
				IsActive:     true, AppliesToAllUsers: true,
			},
			{
				Name:         "Sales Marathon",
				Description:  "More than 100 sales in a single month",
				Category:     CategoryMonthly,
				IconURL:      "/trophies/sales_marathon.png",
				PointsReward: 75,
				Criteria:     []Criterion{{Type: CriterionSalesCount, Operator: OperatorGreaterThan, Value: 100, Period: PeriodMonthly}},
				IsActive:     true, AppliesToAllUsers: true,
			},
			{
				Name:         "Quarter Star",
				Description:  "More than 30,000 in sales in a quarter",
				Category:     CategoryQuarterly,
				IconURL:      "/trophies/quarter_star.png",
				PointsReward: 250,
				Criteria:     []Criterion{{Type: CriterionSalesAmount, Operator: OperatorGreaterThan, Value: 30000, Period: PeriodQuarterly}},
				IsActive:     true, AppliesToAllUsers: true,
			},
			{
				Name:         "Year Legend",
				Description:  "More than 120,000 in sales in a year",
				Category:     CategoryYearly,
				IconURL:      "/trophies/year_legend.png",
				PointsReward: 1000,
				Criteria:     []Criterion{{Type: CriterionSalesAmount, Operator: OperatorGreaterThan, Value: 120000, Period: PeriodYearly}},
				IsActive:     true, AppliesToAllUsers: true,
			},
			{
				Name:         "First Day Hero",
				Description:  "More than 10 sales in one day",
				Category:     CategorySpecial,
				IconURL:      "/trophies/first_day_hero.png",
				PointsReward: 50,
				Criteria:     []Criterion{{Type: CriterionSalesCount, Operator: OperatorGreaterThan, Value: 10, Period: PeriodDaily}},
				IsActive:     true, AppliesToAllUsers: true,
			},
			{
				Name:         "Hat Trick",
				Description:  "Best seller three months in a row",
				Category:     CategoryConsecutive,
				IconURL:      "/trophies/hat_trick.png",
				PointsReward: 300,
				Criteria:     []Criterion{{Type: CriterionBestSellerRuns, Operator: OperatorGreaterThan, Value: 2, Period: PeriodMonthly}},
				IsActive:     true, AppliesToAllUsers: true,
			},
			{
				Name:         "Unstoppable",
				Description:  "Best seller six months in a row",
				Category:     CategoryConsecutive,
				IconURL:      "/trophies/unstoppable.png",
				PointsReward: 750,
				Criteria:     []Criterion{{Type: CriterionBestSellerRuns, Operator: OperatorGreaterThan, Value: 5, Period: PeriodMonthly}},
				IsActive:     true, AppliesToAllUsers: true,
			},
		},
	}
}
