// Package excellence содержит движок оценки и прогнозирования Prima Scholar.
//
// Пакет определяет:
//
//   - FactorCalculator: пять под-факторов из сырых метрик студента
//   - ScoreAggregator: взвешенный итоговый балл с множителем уровня обучения
//   - TrajectoryAnalyzer: МНК-тренд по истории балла и импульс [0, 1]
//   - DistinctionPredictor: вероятность, уверенность, разрыв и дата достижения награды
//   - Интерфейсы репозиториев и кэша (реализации в infrastructure)
//
// # Архитектурные принципы
//
//  1. Чистые функции - расчёты не выполняют ввод-вывод и не держат блокировок
//  2. Конфигурация как данные - веса, бонусы и пороги наград внедряются в конструкторы
//  3. Нулевые внешние зависимости - только стандартная библиотека Go
//
// # Поток данных
//
//	metrics := repo.FetchComprehensiveStudentData(ctx, id)
//	factors := calculator.ComputeFactors(metrics)
//	score := aggregator.Aggregate(factors, metrics.AcademicLevel, now)
//	history := trajectories.FetchTrajectoryHistory(ctx, id, MaxTrajectoryPoints)
//	result, err := predictor.Predict("Dean_List", PredictionInput{
//	    StudentID: id,
//	    Score:     score,
//	    History:   history,
//	    Metrics:   metrics,
//	    Now:       now,
//	})
//
// # Недостаточная история
//
// Меньше двух точек траектории - это не ошибка, а отдельная политика:
// Trend.Insufficient = true, импульс равен NeutralMomentum (0.5).
package excellence
